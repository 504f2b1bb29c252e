package prompt

// SchemaVersion tags the output contract embedded in every system prompt.
// The processor rejects nothing by version; the tag exists so prompt and
// parser changes move together.
const SchemaVersion = "1.2"

// outputSchema is the fixed JSON shape the inference service must return.
// Keep in sync with inference.RawResult.
const outputSchema = `{
  "suggestions": [{
    "title": "string (>= 5 chars)",
    "description": "string (optional)",
    "rationale": "string",
    "recommendedAssignees": [{"userId": "string", "reason": "string (optional)"}],
    "recommendedTeamId": "string (optional)",
    "suggestedDueDate": "RFC 3339 timestamp (optional)",
    "priority": "critical | high | medium | low",
    "estimatedMinutes": 0,
    "tags": ["string"],
    "checklist": ["string"],
    "dependencies": ["taskId"],
    "workflowContext": "string (optional)",
    "location": "string (optional)",
    "contexts": [{"type": "string", "referenceId": "string", "label": "string (optional)", "role": "primary | supporting"}],
    "confidence": 0.0,
    "expectedOutcome": "string",
    "highlights": ["string"]
  }],
  "optimizations": [{
    "taskId": "string",
    "taskTitle": "string",
    "action": "reschedule | reassign | reprioritize | split | merge",
    "currentValue": "string",
    "suggestedValue": "string",
    "rationale": "string",
    "confidence": 0.0,
    "expectedImpact": "string",
    "requiresApproval": true
  }],
  "analysis": {
    "totalContextItems": 0,
    "optimizationOpportunities": 0,
    "riskFactors": ["string"],
    "optimizationGoalWeights": {"capacity_utilization": 0.0, "timeline_optimization": 0.0, "process_efficiency": 0.0}
  }
}`

// promptRules are the fixed instructions every strategy embeds.
const promptRules = `Rules:
- Respond with a single JSON object conforming exactly to the schema above (version ` + SchemaVersion + `). No prose outside the JSON.
- Every suggestion must name at least one assignee in recommendedAssignees.
- The first assignee is the owner; the owner's team membership determines the suggestion's team unless recommendedTeamId overrides it.
- Only reference userId and teamId values from the VALID USERS and VALID TEAMS lists in the user message. Never invent identifiers.
- Confidence bands: >= 0.9 high trust; 0.7-0.9 medium-high; 0.5-0.7 medium; below 0.5 the item must not be auto-applied and requiresApproval must be true.
- Optimizations must target existing taskIds from the context only.`

const fewShotExample = `Example output (abbreviated):
{"suggestions":[{"title":"Rebalance packaging line QA","rationale":"QA is blocked on 3 of 5 lines","recommendedAssignees":[{"userId":"u-12"}],"priority":"high","contexts":[{"type":"task","referenceId":"t-77","role":"primary"}],"confidence":0.82,"expectedOutcome":"QA backlog cleared within 2 days"}],"optimizations":[],"analysis":{"totalContextItems":41,"optimizationOpportunities":1,"riskFactors":[],"optimizationGoalWeights":{"capacity_utilization":0.33,"timeline_optimization":0.33,"process_efficiency":0.33}}}`
