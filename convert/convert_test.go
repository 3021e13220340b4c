package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YatsauAliaksei/openapi-mcp/errdefs"
)

const filesSpec = `
openapi: 3.0.0
info:
  title: Files
  version: "1"
paths:
  /folders/{id}/files:
    post:
      operationId: upload-file
      parameters:
        - name: id
          in: path
          required: true
          schema:
            type: string
      requestBody:
        required: true
        content:
          multipart/form-data:
            schema:
              type: object
              required: [file, id]
              properties:
                file:
                  type: string
                  format: binary
                id:
                  type: string
                note:
                  type: string
                created:
                  type: string
                  readOnly: true
      responses:
        "201":
          description: Uploaded
  /legacy:
    get:
      operationId: fetch
      responses:
        "200":
          description: ok
  /legacy/v2:
    get:
      operationId: Fetch
      responses:
        "200":
          description: ok
  /notes:
    post:
      operationId: addNote
      requestBody:
        content:
          application/x-www-form-urlencoded:
            schema:
              type: object
              required: [text]
              properties:
                text:
                  type: string
      responses:
        "201":
          description: Created
    put:
      requestBody:
        content:
          text/plain:
            schema:
              type: string
      responses:
        "204":
          description: Stored
`

const treeSpec = `
openapi: 3.0.0
info:
  title: Tree
  version: "1"
paths:
  /nodes:
    post:
      operationId: createNode
      requestBody:
        content:
          application/json:
            schema:
              $ref: '#/components/schemas/Node'
      responses:
        "201":
          description: ok
components:
  schemas:
    Node:
      title: Node
      type: object
      properties:
        name:
          type: string
        children:
          type: array
          items:
            $ref: '#/components/schemas/Node'
`

func convertAll(t *testing.T, doc string, opts Options) []*Tool {
	t.Helper()
	tools, err := NewConverter(mustParse(t, doc), opts).Convert()
	require.NoError(t, err)
	return tools
}

func names(tools []*Tool) []string {
	out := make([]string, 0, len(tools))
	for _, tool := range tools {
		out = append(out, tool.Name)
	}
	return out
}

func TestConvertNames(t *testing.T) {
	tools := convertAll(t, pushSpec, Options{ServiceName: "svc"})
	assert.Equal(t, []string{
		"svc_listdeviceregistrations",
		"svc_registerdevice",
		"svc_deletedevice",
		"svc_get_status",
	}, names(tools))

	for _, tool := range tools {
		assert.Equal(t, "svc", tool.Service)
	}
}

func TestConvertFilter(t *testing.T) {
	tools := convertAll(t, pushSpec, Options{
		ServiceName: "svc",
		Filter:      &Filter{IncludePaths: []string{"/push/**"}},
	})
	assert.Len(t, tools, 3)
	assert.NotContains(t, names(tools), "svc_get_status")

	tools = convertAll(t, pushSpec, Options{
		ServiceName: "svc",
		Filter:      &Filter{ExcludeTags: []string{"Push"}},
	})
	assert.Equal(t, []string{"svc_get_status"}, names(tools))
}

func TestConvertNoParameters(t *testing.T) {
	tools := convertAll(t, pushSpec, Options{ServiceName: "svc"})
	status := tools[3]

	assert.Equal(t, "GET", status.Method)
	assert.Equal(t, "/status", status.Path)
	assert.Equal(t, ContentTypeNone, status.ContentType)
	assert.Empty(t, status.Params)
	assert.Equal(t, map[string]any{"type": "object", "properties": map[string]any{}}, status.InputSchema())
	assert.Equal(t, "Service status\n\nResponses:\n- 200: OK", status.Description)
	assert.NoError(t, status.Validate(map[string]any{}))
}

func TestConvertQueryParameter(t *testing.T) {
	list := convertAll(t, pushSpec, Options{ServiceName: "svc"})[0]

	require.Len(t, list.Params, 1)
	limit := list.Params[0]
	assert.Equal(t, "limit", limit.Key)
	assert.Equal(t, LocationQuery, limit.In)
	assert.False(t, limit.Required)
	assert.Equal(t, "form", limit.Style)
	assert.True(t, limit.Explode)
	assert.Equal(t, "integer", limit.Schema["type"])
	assert.Contains(t, limit.Schema["description"], "Example:")

	assert.NoError(t, list.Validate(map[string]any{}))
	assert.NoError(t, list.Validate(map[string]any{"limit": float64(5)}))
	assert.NoError(t, list.Validate(map[string]any{"limit": nil}))

	err := list.Validate(map[string]any{"limit": 0})
	assert.Equal(t, errdefs.KindValidation, errdefs.KindOf(err))
	err = list.Validate(map[string]any{"limit": "many"})
	assert.Equal(t, errdefs.KindValidation, errdefs.KindOf(err))

	// unknown arguments are not part of the schema
	assert.NoError(t, list.Validate(map[string]any{"unknown": true}))
}

func TestConvertJSONBody(t *testing.T) {
	register := convertAll(t, pushSpec, Options{ServiceName: "svc"})[1]

	assert.Equal(t, ContentTypeJSON, register.ContentType)
	assert.Equal(t, "application/json", register.MediaType)
	require.Len(t, register.Params, 1)

	body := register.Params[0]
	assert.Equal(t, "body", body.Key)
	assert.True(t, body.Whole)
	assert.True(t, body.Required)
	assert.Equal(t, []string{"id"}, body.Schema["required"])
	assert.Equal(t, []string{"body"}, register.InputSchema()["required"])

	err := register.Validate(map[string]any{})
	var ve *errdefs.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "body", ve.Param)

	assert.Error(t, register.Validate(map[string]any{"body": map[string]any{"platform": "ios"}}))
	assert.Error(t, register.Validate(map[string]any{"body": map[string]any{"id": "d1", "platform": "windows"}}))
	assert.NoError(t, register.Validate(map[string]any{"body": map[string]any{"id": "d1", "platform": "ios"}}))
}

func TestConvertPathAndHeaders(t *testing.T) {
	del := convertAll(t, pushSpec, Options{ServiceName: "svc"})[2]

	var keys []string
	for _, p := range del.Params {
		keys = append(keys, p.Key)
	}
	assert.Equal(t, []string{"deviceId", "X-Request-Id"}, keys)

	id, ok := del.Param("deviceId")
	require.True(t, ok)
	assert.Equal(t, LocationPath, id.In)
	assert.True(t, id.Required)
	assert.Equal(t, "simple", id.Style)
	assert.False(t, id.Explode)

	_, ok = del.Param("Authorization")
	assert.False(t, ok)

	assert.Contains(t, del.Description, "WARNING: This operation is deprecated.")
	assert.Contains(t, del.Description, "DELETE /push/deviceRegistrations/{deviceId}")
}

func TestConvertFormBodies(t *testing.T) {
	tools := convertAll(t, filesSpec, Options{ServiceName: "files"})

	// text/plain only operations are skipped
	assert.Equal(t, []string{
		"files_upload_file",
		"files_get_legacy",
		"files_get_legacy_v2",
		"files_addnote",
	}, names(tools))

	upload := tools[0]
	assert.Equal(t, ContentTypeMultipart, upload.ContentType)
	assert.Equal(t, "multipart/form-data", upload.MediaType)

	var keys []string
	for _, p := range upload.Params {
		keys = append(keys, p.Key)
	}
	assert.Equal(t, []string{"id", "file", "body_id", "note"}, keys)

	file, _ := upload.Param("file")
	assert.True(t, file.Binary)
	assert.True(t, file.Required)
	assert.Contains(t, file.Schema["description"], "local file")

	bodyID, _ := upload.Param("body_id")
	assert.Equal(t, "id", bodyID.Name)
	assert.Equal(t, LocationBody, bodyID.In)
	assert.True(t, bodyID.Required)

	note, _ := upload.Param("note")
	assert.False(t, note.Required)

	assert.NoError(t, upload.Validate(map[string]any{"id": "f1", "file": "/tmp/a.txt", "body_id": "b1"}))
	assert.NoError(t, upload.Validate(map[string]any{"id": "f1", "file": []byte("raw"), "body_id": "b1"}))

	err := upload.Validate(map[string]any{"id": "f1", "body_id": "b1"})
	var ve *errdefs.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "file", ve.Param)

	note2 := tools[3]
	assert.Equal(t, ContentTypeForm, note2.ContentType)
	text, ok := note2.Param("text")
	require.True(t, ok)
	// the body itself is optional, so none of its fields are required
	assert.False(t, text.Required)
	_, hasRequired := note2.InputSchema()["required"]
	assert.False(t, hasRequired)
}

func TestConvertCircularSchema(t *testing.T) {
	tools := convertAll(t, treeSpec, Options{ServiceName: "tree"})
	require.Len(t, tools, 1)

	body := tools[0].Params[0].Schema
	props := body["properties"].(map[string]any)
	children := props["children"].(map[string]any)
	assert.Equal(t, map[string]any{"description": "Circular reference to Node"}, children["items"])

	assert.NoError(t, tools[0].Validate(map[string]any{
		"body": map[string]any{"name": "root", "children": []any{map[string]any{"name": "leaf"}}},
	}))
}

const petsSpec = `
openapi: 3.0.0
info:
  title: Pets
  version: "1"
paths:
  /pets:
    post:
      operationId: createPet
      requestBody:
        required: true
        content:
          application/json:
            schema:
              $ref: '#/components/schemas/Pet'
      responses:
        "201":
          description: Created
components:
  schemas:
    Pet:
      type: object
      required: [id, name]
      properties:
        id:
          type: string
          readOnly: true
        name:
          type: string
`

func TestConvertJSONBodyReadOnlyRequired(t *testing.T) {
	tools := convertAll(t, petsSpec, Options{ServiceName: "pets"})
	require.Len(t, tools, 1)
	create := tools[0]

	body, ok := create.Param("body")
	require.True(t, ok)
	assert.Equal(t, []string{"name"}, body.Schema["required"])
	props := body.Schema["properties"].(map[string]any)
	assert.Contains(t, props, "id")

	assert.NoError(t, create.Validate(map[string]any{"body": map[string]any{"name": "rex"}}))

	err := create.Validate(map[string]any{"body": map[string]any{"id": "p1"}})
	var ve *errdefs.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Message, "name")
}

func TestSynthesizeName(t *testing.T) {
	tests := []struct {
		method, path, want string
	}{
		{"GET", "/status", "get_status"},
		{"DELETE", "/users/{userId}/items", "delete_users_userid_items"},
		{"POST", "/a-b/c.d", "post_a_b_c_d"},
		{"GET", "/", "get_root"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, synthesizeName(tt.method, tt.path), "%s %s", tt.method, tt.path)
	}
}

func TestGetDescriptionFallback(t *testing.T) {
	assert.Equal(t, "PATCH /things/{id}", getDescription(Operation{Method: "PATCH", Path: "/things/{id}"}))
	assert.Equal(t, "Only summary", getDescription(Operation{Method: "GET", Path: "/x", Summary: "Only summary"}))
	assert.Equal(t, "Sum\n\nLonger text", getDescription(Operation{Summary: "Sum", Description: "Longer text"}))
}
