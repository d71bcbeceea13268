package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Campus Attendance API",
        "description": "Class-session lifecycle and attendance recording",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Sessions", "description": "Class-session lifecycle"},
        {"name": "Attendance", "description": "Attendance intake and corrections"},
        {"name": "Reports", "description": "Daily attendance reporting"}
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
        "/sessions": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Schedule a class session",
                "responses": {
                    "201": {"description": "Created"},
                    "400": {"description": "Invalid time range"},
                    "409": {"description": "Scheduling conflict"}
                }
            },
            "get": {
                "tags": ["Sessions"],
                "summary": "List sessions for a date",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/sessions/{sessionId}": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Get one class session",
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not found"}
                }
            },
            "patch": {
                "tags": ["Sessions"],
                "summary": "Patch a non-terminal session",
                "responses": {
                    "200": {"description": "OK"},
                    "409": {"description": "Session locked or conflict"}
                }
            }
        },
        "/sessions/{sessionId}/start": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Start a scheduled session",
                "responses": {
                    "200": {"description": "OK"},
                    "409": {"description": "Invalid transition"}
                }
            }
        },
        "/sessions/{sessionId}/close": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Close a session",
                "responses": {
                    "200": {"description": "OK"},
                    "409": {"description": "Invalid transition"}
                }
            }
        },
        "/sessions/{sessionId}/cancel": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Cancel a session",
                "responses": {
                    "200": {"description": "OK"},
                    "409": {"description": "Invalid transition"}
                }
            }
        },
        "/sessions/{sessionId}/attendance": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Record attendance in bulk",
                "responses": {
                    "200": {"description": "Counts and per-tuple errors"},
                    "404": {"description": "Session not found"},
                    "409": {"description": "Session cancelled"}
                }
            },
            "get": {
                "tags": ["Attendance"],
                "summary": "List attendance records for a session",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/sessions/{sessionId}/stats": {
            "get": {
                "tags": ["Attendance"],
                "summary": "Per-session attendance statistics",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/attendance/{recordId}": {
            "patch": {
                "tags": ["Attendance"],
                "summary": "Correct a single attendance record",
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Record not found"}
                }
            }
        },
        "/attendance/{recordId}/excuse": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Excuse an absent or late record",
                "responses": {
                    "200": {"description": "OK"},
                    "409": {"description": "Invalid excuse target"}
                }
            }
        },
        "/attendance/{recordId}/logs": {
            "get": {
                "tags": ["Attendance"],
                "summary": "Audit trail of a record",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/students/{studentId}/attendance": {
            "get": {
                "tags": ["Attendance"],
                "summary": "Student attendance history",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/students/{studentId}/stats": {
            "get": {
                "tags": ["Attendance"],
                "summary": "Per-student attendance statistics",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/teachers/{teacherId}/sessions": {
            "get": {
                "tags": ["Sessions"],
                "summary": "List a teacher's sessions",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/reports/daily": {
            "get": {
                "tags": ["Reports"],
                "summary": "Daily attendance report",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/reports/daily/export": {
            "get": {
                "tags": ["Reports"],
                "summary": "Export the daily report as CSV or PDF",
                "responses": {
                    "200": {"description": "File payload"}
                }
            }
        }
    },
    "definitions": {
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
                "pagination": {"type": "object"},
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
