package docs

import "github.com/swaggo/swag"

const docTemplate = `{
  "swagger": "2.0",
  "info": {
    "title": "Team Triage API",
    "description": "Recommends and assigns owning teams for new support tickets from similar historical tickets",
    "version": "1.0"
  },
  "basePath": "/",
  "securityDefinitions": {
    "AdminKey": {"type": "apiKey", "in": "header", "name": "X-Admin-Key"}
  },
  "paths": {
    "/healthz": {"get": {"tags": ["health"], "summary": "Liveness and database check", "responses": {"200": {"description": "OK"}, "503": {"description": "Database unavailable"}}}},
    "/api/tickets/{key}/recommendation": {"get": {"tags": ["tickets"], "summary": "Team recommendation", "parameters": [{"name": "key", "in": "path", "required": true, "type": "string"}, {"name": "fine_tuning", "in": "query", "type": "boolean"}, {"name": "k", "in": "query", "type": "integer"}], "responses": {"200": {"description": "Recommendation"}, "404": {"description": "Ticket not found"}}}},
    "/api/tickets/{key}/assign": {"post": {"tags": ["tickets"], "summary": "Assign team", "security": [{"AdminKey": []}], "parameters": [{"name": "key", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "Assigned"}, "409": {"description": "Already assigned"}, "422": {"description": "No recommendation"}}}},
    "/api/webhook/issue": {"post": {"tags": ["webhook"], "summary": "Issue webhook", "security": [{"AdminKey": []}], "responses": {"202": {"description": "Accepted"}}}},
    "/api/runs/latest": {"get": {"tags": ["runs"], "summary": "Latest scheduler run", "responses": {"200": {"description": "Run"}, "404": {"description": "No runs"}}}},
    "/api/decisions": {"get": {"tags": ["decisions"], "summary": "Decision audit log", "parameters": [{"name": "ticket_key", "in": "query", "type": "string"}, {"name": "limit", "in": "query", "type": "integer"}, {"name": "offset", "in": "query", "type": "integer"}], "responses": {"200": {"description": "Decisions"}}}},
    "/api/history/teams": {"get": {"tags": ["history"], "summary": "Stored history per team", "responses": {"200": {"description": "Counts"}}}},
    "/api/history/import": {"post": {"tags": ["history"], "summary": "Import historical tickets", "security": [{"AdminKey": []}], "consumes": ["multipart/form-data"], "parameters": [{"name": "history", "in": "formData", "required": true, "type": "file"}], "responses": {"200": {"description": "Import summary"}}}},
    "/api/scheduler/status": {"get": {"tags": ["scheduler"], "summary": "Scheduler status", "responses": {"200": {"description": "Status"}}}},
    "/api/scheduler/run": {"post": {"tags": ["scheduler"], "summary": "Trigger a polling tick", "security": [{"AdminKey": []}], "responses": {"202": {"description": "Started"}, "409": {"description": "Tick already running"}}}}
  }
}`

func init() {
	swag.Register(swag.Name, &s{})
}

type s struct{}

func (s *s) ReadDoc() string {
	return docTemplate
}
