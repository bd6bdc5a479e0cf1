package apidocs

import (
	"encoding/json"
	"testing"

	"github.com/swaggo/swag"
)

func TestRegisteredDocIsValidJSON(t *testing.T) {
	doc, err := swag.ReadDoc(SwaggerInfo.InstanceName())
	if err != nil {
		t.Fatalf("ReadDoc: %v", err)
	}
	var parsed struct {
		Info  struct{ Title string }     `json:"info"`
		Paths map[string]json.RawMessage `json:"paths"`
	}
	if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
		t.Fatalf("doc is not JSON: %v", err)
	}
	if parsed.Info.Title != "tensord API" {
		t.Fatalf("title=%q", parsed.Info.Title)
	}
	if _, ok := parsed.Paths["/v2/models/{model}/infer"]; !ok {
		t.Fatalf("infer path missing: %v", parsed.Paths)
	}
}
