package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Donor Reports Dashboard",
        "description": "Upload donor spreadsheets, follow report generation and browse generated donor reports",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Dashboard", "description": "Spreadsheet upload, generation progress and notifications"},
        {"name": "Reports", "description": "Paginated donor report table and downloads"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"}
                }
            }
        },
        "/": {
            "get": {
                "summary": "Dashboard page; opens a new session and sets the session cookie",
                "produces": ["text/html"],
                "responses": {
                    "200": {"description": "HTML page"}
                }
            }
        },
        "/dashboard": {
            "get": {
                "tags": ["Dashboard"],
                "summary": "Dashboard state",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Session required", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/dashboard/file": {
            "post": {
                "tags": ["Dashboard"],
                "summary": "Select a spreadsheet for upload",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "file", "in": "formData", "required": true, "type": "file", "description": "Excel (.xlsx, .xls) or CSV (.csv), at most 5MB"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Unsupported file type", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "413": {"description": "File too large", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Dashboard"],
                "summary": "Remove the selected spreadsheet",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/dashboard/generate": {
            "post": {
                "tags": ["Dashboard"],
                "summary": "Upload the selected spreadsheet and start report generation",
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "No file selected", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Report backend rejected the upload", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/dashboard/progress": {
            "get": {
                "tags": ["Dashboard"],
                "summary": "Report generation progress",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/dashboard/notifications/{kind}": {
            "delete": {
                "tags": ["Dashboard"],
                "summary": "Dismiss a notification banner",
                "parameters": [
                    {"name": "kind", "in": "path", "required": true, "type": "string", "enum": ["success", "error", "completed"]}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "400": {"description": "Unknown kind", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/dashboard/reports": {
            "get": {
                "tags": ["Reports"],
                "summary": "Current page of donor reports",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/dashboard/reports/page": {
            "put": {
                "tags": ["Reports"],
                "summary": "Move the report table to a page (clamped to range)",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SetPageRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/dashboard/reports/search": {
            "put": {
                "tags": ["Reports"],
                "summary": "Filter the report table",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SearchRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/dashboard/reports/refresh": {
            "post": {
                "tags": ["Reports"],
                "summary": "Refetch the current report page",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/dashboard/reports/download": {
            "get": {
                "tags": ["Reports"],
                "summary": "Download a generated donor report",
                "produces": ["application/octet-stream"],
                "parameters": [
                    {"name": "token", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Report file"},
                    "403": {"description": "Link issued to another session", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Invalid or expired link", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "SetPageRequest": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"}
            },
            "required": ["page"]
        },
        "SearchRequest": {
            "type": "object",
            "properties": {
                "query": {"type": "string", "maxLength": 256}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"},
                "total_pages": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
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
