// Package docs holds the OpenAPI document for the REST API.
package docs

import "github.com/swaggo/swag"

// @title RSS Reader API
// @version 1.0
// @description Local store and sync service for an Inoreader-backed RSS reader

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @BasePath /

// @securityDefinitions.apikey bearer
// @in header
// @name Authorization

// SwaggerInfo is the registered document.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/",
	Title:            "RSS Reader API",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "RSS Reader API",
        "description": "Local store and sync service for an Inoreader-backed RSS reader",
        "version": "1.0"
    },
    "basePath": "/",
    "schemes": [
        "http",
        "https"
    ],
    "consumes": [
        "application/json"
    ],
    "produces": [
        "application/json"
    ],
    "securityDefinitions": {
        "bearer": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header",
            "description": "Bearer JWT, required when AUTH_JWT_SECRET is set"
        }
    },
    "paths": {
        "/health": {
            "get": {
                "summary": "Service health",
                "tags": [
                    "system"
                ],
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "Healthy"
                    },
                    "503": {
                        "description": "Database unreachable"
                    }
                }
            }
        },
        "/api/articles": {
            "get": {
                "summary": "List articles",
                "tags": [
                    "articles"
                ],
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "feed_id",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "tag_id",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "folder",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "unread",
                        "in": "query",
                        "type": "boolean"
                    },
                    {
                        "name": "starred",
                        "in": "query",
                        "type": "boolean"
                    },
                    {
                        "name": "limit",
                        "in": "query",
                        "type": "integer",
                        "default": 50,
                        "minimum": 1,
                        "maximum": 200
                    },
                    {
                        "name": "offset",
                        "in": "query",
                        "type": "integer",
                        "default": 0
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Article page"
                    },
                    "400": {
                        "description": "Invalid query"
                    }
                },
                "security": [
                    {
                        "bearer": []
                    }
                ]
            }
        },
        "/api/articles/mark-read": {
            "post": {
                "summary": "Mark articles read by IDs or feed",
                "tags": [
                    "articles"
                ],
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "type": "object",
                            "properties": {
                                "ids": {
                                    "type": "array",
                                    "items": {
                                        "type": "string"
                                    }
                                },
                                "feed_id": {
                                    "type": "string"
                                }
                            }
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Number of updated articles"
                    },
                    "400": {
                        "description": "Neither ids nor feed_id"
                    },
                    "404": {
                        "description": "Feed not found"
                    }
                },
                "security": [
                    {
                        "bearer": []
                    }
                ]
            }
        },
        "/api/articles/{id}": {
            "get": {
                "summary": "Get an article",
                "tags": [
                    "articles"
                ],
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Article"
                    },
                    "404": {
                        "description": "Not found"
                    }
                },
                "security": [
                    {
                        "bearer": []
                    }
                ]
            },
            "patch": {
                "summary": "Change read or starred state",
                "tags": [
                    "articles"
                ],
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "type": "object",
                            "properties": {
                                "is_read": {
                                    "type": "boolean"
                                },
                                "is_starred": {
                                    "type": "boolean"
                                }
                            }
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Updated article"
                    },
                    "400": {
                        "description": "Empty update"
                    },
                    "404": {
                        "description": "Not found"
                    }
                },
                "security": [
                    {
                        "bearer": []
                    }
                ]
            }
        },
        "/api/articles/{id}/fetch-content": {
            "post": {
                "summary": "Fetch and store the full article text",
                "tags": [
                    "articles"
                ],
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Article with full content"
                    },
                    "404": {
                        "description": "Not found"
                    },
                    "422": {
                        "description": "No readable content"
                    }
                },
                "security": [
                    {
                        "bearer": []
                    }
                ]
            }
        },
        "/api/feeds": {
            "get": {
                "summary": "List feeds with unread counts",
                "tags": [
                    "feeds"
                ],
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                },
                "security": [
                    {
                        "bearer": []
                    }
                ]
            },
            "post": {
                "summary": "Subscribe to a feed",
                "tags": [
                    "feeds"
                ],
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "type": "object",
                            "required": [
                                "url"
                            ],
                            "properties": {
                                "url": {
                                    "type": "string"
                                }
                            }
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Subscribed"
                    },
                    "400": {
                        "description": "Not a feed"
                    },
                    "429": {
                        "description": "Upstream budget exhausted"
                    },
                    "502": {
                        "description": "Upstream error"
                    }
                },
                "security": [
                    {
                        "bearer": []
                    }
                ]
            }
        },
        "/api/feeds/{id}": {
            "delete": {
                "summary": "Unsubscribe from a feed",
                "tags": [
                    "feeds"
                ],
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "204": {
                        "description": "Deleted"
                    },
                    "404": {
                        "description": "Not found"
                    }
                },
                "security": [
                    {
                        "bearer": []
                    }
                ]
            }
        },
        "/api/tags": {
            "get": {
                "summary": "List tags with article counts",
                "tags": [
                    "tags"
                ],
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                },
                "security": [
                    {
                        "bearer": []
                    }
                ]
            }
        },
        "/api/users/preferences": {
            "get": {
                "summary": "Get preferences",
                "tags": [
                    "users"
                ],
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                },
                "security": [
                    {
                        "bearer": []
                    }
                ]
            },
            "put": {
                "summary": "Update preferences",
                "tags": [
                    "users"
                ],
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "type": "object",
                            "properties": {
                                "theme": {
                                    "type": "string",
                                    "enum": [
                                        "light",
                                        "dark",
                                        "system"
                                    ]
                                },
                                "fontSize": {
                                    "type": "string",
                                    "enum": [
                                        "small",
                                        "medium",
                                        "large"
                                    ]
                                },
                                "showUnreadOnly": {
                                    "type": "boolean"
                                },
                                "markReadOnScroll": {
                                    "type": "boolean"
                                },
                                "syncEnabled": {
                                    "type": "boolean"
                                },
                                "maxArticlesPerSync": {
                                    "type": "integer",
                                    "minimum": 10,
                                    "maximum": 1000
                                }
                            }
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Saved preferences"
                    },
                    "400": {
                        "description": "Invalid value"
                    }
                },
                "security": [
                    {
                        "bearer": []
                    }
                ]
            }
        },
        "/api/sync": {
            "post": {
                "summary": "Start a sync",
                "tags": [
                    "sync"
                ],
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "202": {
                        "description": "Sync started"
                    },
                    "409": {
                        "description": "Sync already running"
                    },
                    "429": {
                        "description": "Upstream budget exhausted"
                    }
                },
                "security": [
                    {
                        "bearer": []
                    }
                ]
            }
        },
        "/api/sync/status/{syncId}": {
            "get": {
                "summary": "Sync progress",
                "tags": [
                    "sync"
                ],
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "name": "syncId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Status"
                    },
                    "404": {
                        "description": "Unknown sync"
                    }
                },
                "security": [
                    {
                        "bearer": []
                    }
                ]
            }
        },
        "/api/sync/last": {
            "get": {
                "summary": "Last sync outcome",
                "tags": [
                    "sync"
                ],
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                },
                "security": [
                    {
                        "bearer": []
                    }
                ]
            }
        },
        "/api/sync/api-usage": {
            "get": {
                "summary": "Upstream API usage for today",
                "tags": [
                    "sync"
                ],
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                },
                "security": [
                    {
                        "bearer": []
                    }
                ]
            }
        },
        "/api/sync/schedule": {
            "get": {
                "summary": "Scheduled jobs",
                "tags": [
                    "sync"
                ],
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                },
                "security": [
                    {
                        "bearer": []
                    }
                ]
            }
        },
        "/api/cleanup": {
            "post": {
                "summary": "Run retention cleanup",
                "tags": [
                    "maintenance"
                ],
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                },
                "security": [
                    {
                        "bearer": []
                    }
                ]
            }
        }
    },
    "definitions": {
        "Error": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                }
            }
        }
    }
}`
