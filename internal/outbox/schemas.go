package outbox

const activityCreatedSchema = `{
  "type": "object",
  "title": "ActivityCreated",
  "properties": {
    "activity_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "assignee_id": {"type": "string"},
    "title": {"type": "string"},
    "category": {"type": "string"},
    "priority": {"type": "string"},
    "due_at": {"type": "string", "format": "date-time"},
    "created_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "tenant_id", "assignee_id", "title", "priority", "created_at"],
  "additionalProperties": false
}`

const activityStatusChangedSchema = `{
  "type": "object",
  "title": "ActivityStatusChanged",
  "properties": {
    "activity_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "assignee_id": {"type": "string"},
    "status": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"},
    "reason": {"type": "string"}
  },
  "required": ["activity_id", "tenant_id", "assignee_id", "status", "occurred_at"],
  "additionalProperties": false
}`
