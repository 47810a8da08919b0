package api

import (
	"net/http"

	"facecards/internal/logger"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// @title Facecards Auth API
// @version 1.0
// @description Telegram Mini-App sign-in and session API
// @BasePath /

func RegisterDocsHandlers(r *mux.Router, log *zap.Logger) {
	r.HandleFunc("/docs/swagger.json", swaggerJSONHandler(log)).Methods("GET")
}

func swaggerJSONHandler(log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(swaggerJSON)); err != nil {
			logger.FromContext(r.Context(), log).Warn("Error writing swagger JSON", zap.Error(err))
		}
	}
}

const swaggerJSON = `{
  "swagger": "2.0",
  "info": {
    "title": "Facecards Auth API",
    "description": "Sign-in for the Telegram Mini-App: verifies init data, resolves the account and issues a session token",
    "version": "1.0"
  },
  "basePath": "/",
  "schemes": ["https"],
  "consumes": ["application/json"],
  "produces": ["application/json"],
  "securityDefinitions": {
    "Bearer": {"type": "apiKey", "name": "Authorization", "in": "header"},
    "InitData": {"type": "apiKey", "name": "X-Telegram-Init-Data", "in": "header"}
  },
  "paths": {
    "/api/v1/auth/init": {
      "post": {
        "summary": "Sign in with Mini-App init data",
        "description": "Init data is read from the X-Telegram-Init-Data header, then the initData body field, then the tgWebAppData query parameter",
        "tags": ["Auth"],
        "parameters": [
          {"name": "X-Telegram-Init-Data", "in": "header", "type": "string", "required": false},
          {"name": "tgWebAppData", "in": "query", "type": "string", "required": false},
          {"name": "body", "in": "body", "required": false, "schema": {"$ref": "#/definitions/InitRequest"}}
        ],
        "responses": {
          "200": {"description": "Signed in", "schema": {"$ref": "#/definitions/InitResponse"}},
          "400": {"description": "Malformed or missing init data", "schema": {"$ref": "#/definitions/Error"}},
          "401": {"description": "Signature missing, invalid or stale", "schema": {"$ref": "#/definitions/Error"}},
          "500": {"description": "Storage error", "schema": {"$ref": "#/definitions/Error"}}
        }
      }
    },
    "/api/v1/auth/validate": {
      "post": {
        "summary": "Validate a session token",
        "tags": ["Auth"],
        "parameters": [
          {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ValidateRequest"}}
        ],
        "responses": {
          "200": {"description": "Token is valid", "schema": {"$ref": "#/definitions/ValidateResponse"}},
          "400": {"description": "Token missing", "schema": {"$ref": "#/definitions/ValidateResponse"}},
          "401": {"description": "Token expired or invalid", "schema": {"$ref": "#/definitions/ValidateResponse"}},
          "404": {"description": "Account no longer exists", "schema": {"$ref": "#/definitions/ValidateResponse"}}
        }
      }
    },
    "/api/v1/auth/logout": {
      "post": {
        "summary": "Clear the session cookie",
        "tags": ["Auth"],
        "responses": {"200": {"description": "Logged out"}}
      }
    },
    "/api/v1/auth/health": {
      "get": {
        "summary": "Auth service health",
        "tags": ["Health"],
        "responses": {"200": {"description": "Healthy", "schema": {"$ref": "#/definitions/Health"}}}
      }
    },
    "/api/v1/users/me": {
      "get": {
        "summary": "Current account",
        "tags": ["Users"],
        "security": [{"Bearer": []}, {"InitData": []}],
        "responses": {
          "200": {"description": "Current account", "schema": {"$ref": "#/definitions/MeResponse"}},
          "401": {"description": "Not authenticated", "schema": {"$ref": "#/definitions/Error"}},
          "404": {"description": "No account for this Telegram user", "schema": {"$ref": "#/definitions/Error"}}
        }
      }
    }
  },
  "definitions": {
    "InitRequest": {
      "type": "object",
      "properties": {"initData": {"type": "string"}}
    },
    "Account": {
      "type": "object",
      "properties": {
        "id": {"type": "integer"},
        "telegram_id": {"type": "string"},
        "username": {"type": "string", "x-nullable": true},
        "first_name": {"type": "string"},
        "last_name": {"type": "string"},
        "avatar": {"type": "string", "x-nullable": true},
        "background_color": {"type": "string"},
        "description": {"type": "string"},
        "badge": {"type": "string", "x-nullable": true},
        "is_premium": {"type": "boolean"}
      }
    },
    "InitResponse": {
      "type": "object",
      "properties": {
        "success": {"type": "boolean"},
        "token": {"type": "string"},
        "expires_at": {"type": "string", "format": "date-time"},
        "user": {"$ref": "#/definitions/Account"},
        "is_new_user": {"type": "boolean"}
      }
    },
    "ValidateRequest": {
      "type": "object",
      "required": ["token"],
      "properties": {"token": {"type": "string"}}
    },
    "ValidateResponse": {
      "type": "object",
      "properties": {
        "valid": {"type": "boolean"},
        "user_id": {"type": "integer"},
        "telegram_id": {"type": "string"},
        "expires_at": {"type": "string", "format": "date-time"},
        "error": {"type": "string"},
        "code": {"type": "string"}
      }
    },
    "MeResponse": {
      "type": "object",
      "properties": {
        "success": {"type": "boolean"},
        "user": {"$ref": "#/definitions/Account"}
      }
    },
    "Health": {
      "type": "object",
      "properties": {
        "status": {"type": "string"},
        "service": {"type": "string"},
        "timestamp": {"type": "string", "format": "date-time"}
      }
    },
    "Error": {
      "type": "object",
      "properties": {
        "success": {"type": "boolean"},
        "error": {"type": "string"},
        "code": {"type": "string"}
      }
    }
  }
}`
