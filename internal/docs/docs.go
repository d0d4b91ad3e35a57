// Package docs holds the OpenAPI description of the trigger API, in the
// layout produced by swag init from the handler annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "summary": "Health check",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/handlers.HealthResponse"}
                    }
                }
            }
        },
        "/api/v1/pipeline/run": {
            "post": {
                "description": "Fetches the device snapshot, normalizes it and loads it into the warehouse.",
                "produces": ["application/json"],
                "summary": "Run the pipeline once",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/handlers.RunResponse"}
                    },
                    "422": {
                        "description": "No device data to load (status no_data)",
                        "schema": {"$ref": "#/definitions/models.APIError"}
                    },
                    "500": {
                        "description": "Pipeline failed",
                        "schema": {"$ref": "#/definitions/models.APIError"}
                    }
                }
            }
        },
        "/api/v1/pipeline/runs": {
            "get": {
                "produces": ["application/json"],
                "summary": "List recent pipeline runs",
                "parameters": [
                    {
                        "type": "integer",
                        "description": "Maximum number of runs (default 20)",
                        "name": "limit",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "type": "array",
                            "items": {"$ref": "#/definitions/runlog.Run"}
                        }
                    },
                    "400": {
                        "description": "Invalid limit",
                        "schema": {"$ref": "#/definitions/models.APIError"}
                    }
                }
            }
        }
    },
    "definitions": {
        "handlers.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"}
            }
        },
        "handlers.RunResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "message": {"type": "string"},
                "device_count": {"type": "integer"},
                "rows_loaded": {"type": "integer"},
                "rows_skipped": {"type": "integer"},
                "run_id": {"type": "string"}
            }
        },
        "models.APIError": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "code": {"type": "string"},
                "message": {"type": "string"},
                "details": {}
            }
        },
        "runlog.Run": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "started_at": {"type": "string"},
                "finished_at": {"type": "string"},
                "status": {"type": "string"},
                "failed_stage": {"type": "string"},
                "device_count": {"type": "integer"},
                "rows_prepared": {"type": "integer"},
                "rows_skipped": {"type": "integer"},
                "rows_loaded": {"type": "integer"},
                "verified_count": {"type": "integer"},
                "error": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Telemetry Pipeline API",
	Description:      "Triggers the LandAirSea device snapshot pipeline and lists past runs.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
