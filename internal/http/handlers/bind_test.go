package handlers_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/geocoder89/userhub/internal/http/handlers"
	"github.com/gin-gonic/gin"
)

type bindTarget struct {
	Name string `json:"name" binding:"required,min=2"`
	Age  int    `json:"age" binding:"required,gt=0"`
	Kind string `json:"kind" binding:"omitempty,oneof=alpha beta"`
}

func setupBindRouter() *gin.Engine {
	r := gin.New()

	r.POST("/bind", func(ctx *gin.Context) {
		var req bindTarget

		if !handlers.BindJSON(ctx, &req) {
			return
		}

		ctx.JSON(http.StatusOK, req)
	})

	return r
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details struct {
			JSON   string                `json:"json"`
			Fields []handlers.FieldError `json:"fields"`
		} `json:"details"`
	} `json:"error"`
}

func TestBindJSONErrors(t *testing.T) {
	r := setupBindRouter()

	tests := []struct {
		name      string
		body      string
		wantField string
		wantRule  string
		wantJSON  string
	}{
		{name: "missing_required", body: `{"age": 3}`, wantField: "name", wantRule: "required"},
		{name: "min_violation", body: `{"name": "x", "age": 3}`, wantField: "name", wantRule: "min"},
		{name: "gt_violation", body: `{"name": "ok", "age": 0}`, wantField: "age", wantRule: "required"},
		{name: "oneof_violation", body: `{"name": "ok", "age": 3, "kind": "gamma"}`, wantField: "kind", wantRule: "oneof"},
		{name: "type_mismatch", body: `{"name": "ok", "age": "three"}`, wantField: "age", wantRule: "type", wantJSON: "invalid_json_type"},
		{name: "broken_json", body: `{"name": `, wantJSON: "invalid_json_syntax"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(r, http.MethodPost, "/bind", "", tt.body)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("got status %d, want 400, body=%s", w.Code, w.Body.String())
			}

			var env errorEnvelope

			if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}

			if env.Error.Code != "invalid_request" {
				t.Errorf("got code %q, want invalid_request", env.Error.Code)
			}

			if tt.wantJSON != "" && env.Error.Details.JSON != tt.wantJSON {
				t.Errorf("got json detail %q, want %q", env.Error.Details.JSON, tt.wantJSON)
			}

			if tt.wantField == "" {
				return
			}

			found := false

			for _, fe := range env.Error.Details.Fields {
				if fe.Field == tt.wantField && fe.Rule == tt.wantRule {
					found = true
				}
			}

			if !found {
				t.Errorf("no field error %s/%s in %+v", tt.wantField, tt.wantRule, env.Error.Details.Fields)
			}
		})
	}
}

func TestBindJSONSuccess(t *testing.T) {
	r := setupBindRouter()

	w := doJSON(r, http.MethodPost, "/bind", "", `{"name": "ok", "age": 3, "kind": "alpha"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200, body=%s", w.Code, w.Body.String())
	}
}
