package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "EduGen Studio API",
        "description": "Local studio for generating, reviewing and downloading educational content.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Form", "description": "Generation form and submission"},
        {"name": "Review", "description": "Rendered content, save and export"},
        {"name": "History", "description": "Past generations and their documents"},
        {"name": "Observability", "description": "Probes and metrics"}
    ],
    "paths": {
        "/form": {
            "get": {
                "tags": ["Form"],
                "summary": "Current form state",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "patch": {
                "tags": ["Form"],
                "summary": "Change one form field",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/FieldChange"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid field or value", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Form"],
                "summary": "Replace the form input",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/FormInput"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Malformed payload", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/generate": {
            "post": {
                "tags": ["Form"],
                "summary": "Submit the form and generate content",
                "responses": {
                    "200": {"description": "Review rendered", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Field errors", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Generation already in progress", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Quota exceeded", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Backend or response format error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "504": {"description": "Backend timeout", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/workspace": {
            "delete": {
                "tags": ["Form"],
                "summary": "Start over",
                "description": "Drops the stored form and review and returns the pristine form.",
                "responses": {
                    "200": {"description": "Pristine form state", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "500": {"description": "Workspace store failure", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/review": {
            "get": {
                "tags": ["Review"],
                "summary": "Current review",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Nothing generated", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Review"],
                "summary": "Discard the review",
                "responses": {
                    "204": {"description": "Discarded"}
                }
            }
        },
        "/review/save": {
            "post": {
                "tags": ["Review"],
                "summary": "Save the review on the backend",
                "responses": {
                    "200": {"description": "Saved", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Nothing generated", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Backend error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/review/export": {
            "post": {
                "tags": ["Review"],
                "summary": "Export the review to a local file",
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["pdf", "csv"], "default": "pdf"}
                ],
                "responses": {
                    "201": {"description": "Export stored", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Unsupported format", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/export/{token}": {
            "get": {
                "tags": ["Review"],
                "summary": "Download an export through its signed link",
                "produces": ["application/pdf", "text/csv"],
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File", "schema": {"type": "file"}},
                    "404": {"description": "Invalid or expired link", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/history": {
            "get": {
                "tags": ["History"],
                "summary": "Fetch generation history",
                "responses": {
                    "200": {"description": "History view, including backend failures", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/history/state": {
            "get": {
                "tags": ["History"],
                "summary": "Current history view without fetching",
                "description": "Reports loading while a fetch is in flight.",
                "responses": {
                    "200": {"description": "History view", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/history/{id}/download": {
            "get": {
                "tags": ["History"],
                "summary": "Download a past generation's document",
                "produces": ["application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Document", "schema": {"type": "file"}},
                    "502": {"description": "Download failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/downloads": {
            "get": {
                "tags": ["History"],
                "summary": "List recorded downloads",
                "parameters": [
                    {"name": "limit", "in": "query", "type": "integer", "default": 50}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/stats": {
            "get": {
                "tags": ["Observability"],
                "summary": "Studio metrics summary",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "FieldChange": {
            "type": "object",
            "required": ["field"],
            "properties": {
                "field": {"type": "string", "example": "quantity"},
                "value": {"example": 3}
            }
        },
        "FormInput": {
            "type": "object",
            "properties": {
                "subject": {"type": "string"},
                "gradeLevel": {"type": "string", "enum": ["primary", "lowerSecondary", "upperSecondary", "higherEducation"]},
                "contentTypes": {
                    "type": "object",
                    "properties": {
                        "qcm": {"type": "boolean"},
                        "exercises": {"type": "boolean"},
                        "fillInTheBlanks": {"type": "boolean"},
                        "summary": {"type": "boolean"},
                        "conceptMap": {"type": "boolean"}
                    }
                },
                "difficulty": {"type": "integer", "minimum": 1, "maximum": 10},
                "quantity": {"type": "integer", "minimum": 1, "maximum": 5}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "fields": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
