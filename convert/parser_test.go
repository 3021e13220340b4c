package convert

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YatsauAliaksei/openapi-mcp/errdefs"
)

const pushSpec = `
openapi: 3.0.3
info:
  title: Push API
  version: "1.0"
servers:
  - url: https://{region}.example.com
    variables:
      region:
        default: eu
  - url: https://api.example.com/v1/
paths:
  /status:
    get:
      tags: [Status]
      summary: Service status
      responses:
        "200":
          description: OK
  /push/deviceRegistrations:
    get:
      operationId: listDeviceRegistrations
      tags: [Push]
      parameters:
        - name: limit
          in: query
          schema:
            type: integer
            minimum: 1
      responses:
        "200":
          description: Registered devices
    post:
      operationId: registerDevice
      tags: [Push]
      requestBody:
        required: true
        content:
          application/json:
            schema:
              $ref: '#/components/schemas/Device'
      responses:
        "201":
          description: Created
        "400":
          description: Bad request
  /push/deviceRegistrations/{deviceId}:
    parameters:
      - name: deviceId
        in: path
        required: true
        schema:
          type: string
    delete:
      operationId: deleteDevice
      tags: [Push]
      deprecated: true
      parameters:
        - name: Authorization
          in: header
          schema:
            type: string
        - name: X-Request-Id
          in: header
          schema:
            type: string
      responses:
        "204":
          description: Deleted
components:
  schemas:
    Device:
      type: object
      required: [id]
      properties:
        id:
          type: string
        platform:
          type: string
          enum: [ios, android]
`

func mustParse(t *testing.T, doc string) *Parser {
	t.Helper()
	p := NewParser()
	require.NoError(t, p.Parse(context.Background(), []byte(doc), ""))
	return p
}

func TestParseYAML(t *testing.T) {
	p := mustParse(t, pushSpec)

	assert.Equal(t, FormatYAML, p.GetFormat())
	assert.Equal(t, "Push API", p.GetInfo().Title)
	assert.Equal(t, "https://api.example.com/v1", p.DefaultServerURL())

	ops := p.Operations()
	require.Len(t, ops, 4)

	var got []string
	for _, op := range ops {
		got = append(got, op.Method+" "+op.Path)
	}
	assert.Equal(t, []string{
		"GET /push/deviceRegistrations",
		"POST /push/deviceRegistrations",
		"DELETE /push/deviceRegistrations/{deviceId}",
		"GET /status",
	}, got)

	// path item parameters are merged into the operation
	del := ops[2]
	require.Len(t, del.Parameters, 3)
	assert.Equal(t, "deviceId", del.Parameters[0].Value.Name)
}

func TestParseJSON(t *testing.T) {
	doc := `{
	"openapi": "3.0.0",
	"info": {"title": "Tiny", "version": "1"},
	"paths": {
		"/ping": {
			"get": {"responses": {"200": {"description": "pong"}}}
		}
	}
}`
	p := mustParse(t, doc)
	assert.Equal(t, FormatJSON, p.GetFormat())
	assert.Empty(t, p.DefaultServerURL())
	assert.Len(t, p.Operations(), 1)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		kind errdefs.Kind
	}{
		{
			name: "malformed yaml",
			doc:  "openapi: [3.0.0\n",
			kind: errdefs.KindInvalidSpec,
		},
		{
			name: "not an object",
			doc:  "- a\n- b\n",
			kind: errdefs.KindInvalidSpec,
		},
		{
			name: "swagger 2",
			doc:  "swagger: \"2.0\"\ninfo:\n  title: x\n  version: \"1\"\npaths: {}\n",
			kind: errdefs.KindInvalidSpec,
		},
		{
			name: "openapi 3.1",
			doc:  "openapi: 3.1.0\ninfo:\n  title: x\n  version: \"1\"\npaths: {}\n",
			kind: errdefs.KindInvalidSpec,
		},
		{
			name: "missing version",
			doc:  "info:\n  title: x\n  version: \"1\"\npaths: {}\n",
			kind: errdefs.KindInvalidSpec,
		},
		{
			name: "unresolved local reference",
			doc: `
openapi: 3.0.0
info:
  title: x
  version: "1"
paths:
  /things:
    get:
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema:
                $ref: '#/components/schemas/Missing'
`,
			kind: errdefs.KindUnresolvedReference,
		},
		{
			name: "missing info",
			doc:  "openapi: 3.0.0\npaths: {}\n",
			kind: errdefs.KindInvalidSpec,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewParser().Parse(context.Background(), []byte(tt.doc), "inline")
			require.Error(t, err)
			assert.Equal(t, tt.kind, errdefs.KindOf(err))

			var sle *errdefs.SpecLoadError
			require.ErrorAs(t, err, &sle)
			assert.Equal(t, "inline", sle.Location)
		})
	}
}

func TestParseFileLocal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "push.yaml")
	require.NoError(t, os.WriteFile(path, []byte(pushSpec), 0o600))

	p := NewParser()
	require.NoError(t, p.ParseFile(context.Background(), path))
	assert.Equal(t, path, p.GetLocation())
	assert.Len(t, p.Operations(), 4)

	err := NewParser().ParseFile(context.Background(), filepath.Join(dir, "absent.yaml"))
	assert.True(t, errdefs.IsKind(err, errdefs.KindNotFound))
}

func TestParseFileRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/openapi.yaml" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write([]byte(pushSpec))
	}))
	defer srv.Close()

	p := NewParser(WithHTTPClient(srv.Client()))
	require.NoError(t, p.ParseFile(context.Background(), srv.URL+"/openapi.yaml"))
	assert.Len(t, p.Operations(), 4)

	err := NewParser(WithHTTPClient(srv.Client())).ParseFile(context.Background(), srv.URL+"/missing.yaml")
	assert.True(t, errdefs.IsKind(err, errdefs.KindNotFound))
}

func TestResolvePointer(t *testing.T) {
	root, err := decodeTree([]byte("a:\n  b/c:\n    - x\n    - y\n"), FormatYAML)
	require.NoError(t, err)
	top := documentRoot(root)

	assert.NotNil(t, resolvePointer(top, "#/a/b~1c/1"))
	assert.Equal(t, "y", resolvePointer(top, "#/a/b~1c/1").Value)
	assert.Nil(t, resolvePointer(top, "#/a/b~1c/2"))
	assert.Nil(t, resolvePointer(top, "#/missing"))
	assert.Equal(t, top, resolvePointer(top, "#"))
}
