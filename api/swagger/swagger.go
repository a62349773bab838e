package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "EduShare Course API",
        "description": "Course catalog, enrollment, progress and payment service",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "tags": [
        {"name": "Courses", "description": "Course catalog"},
        {"name": "Enrollments", "description": "Enrollment and lesson progress"},
        {"name": "Payments", "description": "Paid-course checkout and receipts"},
        {"name": "Auth", "description": "Accounts and token lifecycle"}
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
                    "200": {"description": "Ready"},
                    "503": {"description": "Degraded"}
                }
            }
        },
        "/courses": {
            "get": {
                "tags": ["Courses"],
                "summary": "List published courses",
                "parameters": [
                    {"name": "q", "in": "query", "type": "string"},
                    {"name": "category", "in": "query", "type": "string"},
                    {"name": "level", "in": "query", "type": "string"},
                    {"name": "free", "in": "query", "type": "boolean"},
                    {"name": "sort", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Courses"],
                "summary": "Create course",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateCourseRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Instructor role required"}
                }
            }
        },
        "/courses/search": {
            "get": {
                "tags": ["Courses"],
                "summary": "Search courses by text",
                "parameters": [
                    {"name": "q", "in": "query", "required": true, "type": "string"},
                    {"name": "category", "in": "query", "type": "string"},
                    {"name": "level", "in": "query", "type": "string"},
                    {"name": "free", "in": "query", "type": "boolean"},
                    {"name": "sort", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Missing query"}
                }
            }
        },
        "/courses/{id}": {
            "get": {
                "tags": ["Courses"],
                "summary": "Get course by internal or business id",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/courses/{id}/enroll": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Enroll a user in a course",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EnrollRequest"}}
                ],
                "responses": {
                    "200": {"description": "Already enrolled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "201": {"description": "Enrolled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/courses/{id}/enrollment": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "Get enrollment status and progress",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "user_id", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/courses/{id}/progress": {
            "put": {
                "tags": ["Enrollments"],
                "summary": "Mark a lesson complete",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateProgressRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "504": {"description": "Response timeout, write continues"}
                }
            }
        },
        "/courses/my-enrollments/{userId}": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "List a user's enrollments",
                "parameters": [
                    {"name": "userId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/payments/create": {
            "post": {
                "tags": ["Payments"],
                "summary": "Create a checkout session for a paid course",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateCheckoutRequest"}}
                ],
                "responses": {
                    "200": {"description": "Existing session reused", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already enrolled"},
                    "502": {"description": "Payment provider error"},
                    "504": {"description": "Payment provider timeout"}
                }
            }
        },
        "/payments/{payment_id}/status": {
            "get": {
                "tags": ["Payments"],
                "summary": "Poll payment status",
                "parameters": [
                    {"name": "payment_id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/payments/{payment_id}/receipt": {
            "get": {
                "tags": ["Payments"],
                "summary": "Download PDF receipt",
                "produces": ["application/pdf"],
                "parameters": [
                    {"name": "payment_id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "PDF receipt"},
                    "400": {"description": "Payment not completed"}
                }
            }
        },
        "/auth/register": {
            "post": {
                "tags": ["Auth"],
                "summary": "Register a student account",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Email already registered"}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate and issue a token pair",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Auth"],
                "summary": "Rotate a refresh token",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RefreshTokenRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid or expired refresh token"}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Auth"],
                "summary": "Revoke the caller's refresh token",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RefreshTokenRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        }
    },
    "definitions": {
        "EnrollRequest": {
            "type": "object",
            "properties": {
                "user_id": {"type": "string"}
            },
            "required": ["user_id"]
        },
        "UpdateProgressRequest": {
            "type": "object",
            "properties": {
                "user_id": {"type": "string"},
                "lesson_id": {"type": "string"},
                "module_id": {"type": "string"}
            },
            "required": ["user_id", "lesson_id"]
        },
        "CreateCheckoutRequest": {
            "type": "object",
            "properties": {
                "course_id": {"type": "string"},
                "user_id": {"type": "string"},
                "customer_info": {"$ref": "#/definitions/CustomerInfo"}
            },
            "required": ["course_id", "user_id"]
        },
        "CustomerInfo": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "email": {"type": "string"},
                "phone": {"type": "string"}
            }
        },
        "CreateCourseRequest": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "subtitle": {"type": "string"},
                "description": {"type": "string"},
                "category": {"type": "string"},
                "level": {"type": "string", "enum": ["beginner", "intermediate", "advanced"]},
                "modules": {"type": "array", "items": {"type": "object"}},
                "pricing": {"type": "object"},
                "tags": {"type": "array", "items": {"type": "string"}},
                "languages": {"type": "array", "items": {"type": "string"}}
            },
            "required": ["title", "description", "category", "level"]
        },
        "RegisterRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"},
                "full_name": {"type": "string"}
            },
            "required": ["email", "password", "full_name"]
        },
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "RefreshTokenRequest": {
            "type": "object",
            "properties": {
                "refresh_token": {"type": "string"}
            },
            "required": ["refresh_token"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "limit": {"type": "integer"},
                "total": {"type": "integer"},
                "totalPages": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "message": {"type": "string"},
                "data": {"type": "object"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "enrolled": {"type": "boolean"},
                "alreadyEnrolled": {"type": "boolean"},
                "error": {"type": "string"}
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
