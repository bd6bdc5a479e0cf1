// Package apidocs registers the OpenAPI document served by the swagger UI.
// Regenerate with `swag init -g cmd/tensord/docs.go -o internal/apidocs`.
package apidocs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {"name": "tensord maintainers"},
        "license": {"name": "MIT", "url": "https://opensource.org/licenses/MIT"},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/models": {
            "get": {
                "produces": ["application/json"],
                "summary": "List models in the repository",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ModelsResponse"}}}
            }
        },
        "/status": {
            "get": {
                "produces": ["application/json"],
                "summary": "Model, queue and instance status",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}}
            }
        },
        "/models/{model}/load": {
            "post": {
                "produces": ["application/json"],
                "summary": "Load a model",
                "parameters": [{"type": "string", "name": "model", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ModelSummary"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Runtime unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/models/{model}/unload": {
            "post": {
                "produces": ["application/json"],
                "summary": "Unload a model after draining its queue",
                "parameters": [{"type": "string", "name": "model", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ModelSummary"}},
                    "429": {"description": "Busy", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/v2/models/{model}/infer": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "summary": "Run inference",
                "parameters": [
                    {"type": "string", "name": "model", "in": "path", "required": true},
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.InferRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.InferResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "429": {"description": "Busy", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Runtime unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "types.ErrorResponse": {
            "type": "object",
            "properties": {"code": {"type": "integer", "example": 400}, "error": {"type": "string", "example": "invalid JSON body"}}
        },
        "types.ModelSummary": {
            "type": "object",
            "properties": {
                "name": {"type": "string", "example": "resnet50"},
                "platform": {"type": "string", "example": "onnxruntime"},
                "max_batch_size": {"type": "integer", "example": 8},
                "state": {"type": "string", "example": "ready"}
            }
        },
        "types.ModelsResponse": {
            "type": "object",
            "properties": {"models": {"type": "array", "items": {"$ref": "#/definitions/types.ModelSummary"}}}
        },
        "types.TensorData": {
            "type": "object",
            "properties": {
                "name": {"type": "string", "example": "INPUT0"},
                "datatype": {"type": "string", "example": "FP32"},
                "shape": {"type": "array", "items": {"type": "integer"}, "example": [1, 16]},
                "data": {"type": "string", "format": "base64"}
            }
        },
        "types.InferRequest": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "batch_size": {"type": "integer", "example": 1},
                "inputs": {"type": "array", "items": {"$ref": "#/definitions/types.TensorData"}}
            }
        },
        "types.InferResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "model": {"type": "string", "example": "resnet50"},
                "outputs": {"type": "array", "items": {"$ref": "#/definitions/types.TensorData"}}
            }
        },
        "types.StatusResponse": {"type": "object"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "tensord API",
	Description:      "HTTP API for multi-framework tensor inference with dynamic batching.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
