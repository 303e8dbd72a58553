package symbols

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/averycrespi/annols/internal/results"
	"github.com/averycrespi/annols/pkg/types"
)

type fakeRequester struct {
	response string
	err      error
	method   string
	params   any
}

func (f *fakeRequester) SendRequest(_ context.Context, method string, params any) (json.RawMessage, error) {
	f.method = method
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.response), nil
}

func TestClient_Lookup(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     []Hit
	}{
		{
			name:     "null response",
			response: "null",
			want:     []Hit{},
		},
		{
			name: "symbol information",
			response: `[{"name":"MySearchableAnnotation","kind":11,"containerName":"dev.snowdrop",
				"location":{"uri":"file:///ws/MySearchableAnnotation.java","range":{"start":{"line":5,"character":18},"end":{"line":5,"character":40}}}}]`,
			want: []Hit{{
				Name:          "MySearchableAnnotation",
				Kind:          results.SymbolKindInterface,
				ContainerName: "dev.snowdrop",
				FileURI:       "file:///ws/MySearchableAnnotation.java",
				Range: &types.Range{
					Start: types.Position{Line: 5, Character: 18},
					End:   types.Position{Line: 5, Character: 40},
				},
			}},
		},
		{
			name:     "workspace symbol with uri-only location",
			response: `[{"name":"User","kind":5,"location":{"uri":"file:///ws/User.java"}}]`,
			want: []Hit{{
				Name:    "User",
				Kind:    results.SymbolKindClass,
				FileURI: "file:///ws/User.java",
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &fakeRequester{response: tt.response}
			client := NewClient(req, nil)

			hits, err := client.Lookup(context.Background(), "MySearchableAnnotation")
			require.NoError(t, err)
			assert.Equal(t, tt.want, hits)
			assert.Equal(t, "workspace/symbol", req.method)
			assert.Equal(t, map[string]any{"query": "MySearchableAnnotation"}, req.params)
		})
	}
}

func TestClient_LookupFailuresAreUpstreamUnavailable(t *testing.T) {
	tests := []struct {
		name string
		req  *fakeRequester
	}{
		{name: "transport error", req: &fakeRequester{err: errors.New("connection refused")}},
		{name: "malformed response", req: &fakeRequester{response: `{"not":"a list"}`}},
		{name: "malformed location", req: &fakeRequester{response: `[{"name":"X","kind":5,"location":42}]`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.req, nil).Lookup(context.Background(), "X")
			require.Error(t, err)
			assert.True(t, types.IsKind(err, types.KindUpstreamUnavailable))
		})
	}
}

func TestIsDefinition(t *testing.T) {
	tests := []struct {
		name string
		hit  Hit
		want bool
	}{
		{name: "interface with equal name", hit: Hit{Name: "Audit", Kind: results.SymbolKindInterface}, want: true},
		{name: "class with equal name", hit: Hit{Name: "Audit", Kind: results.SymbolKindClass}, want: true},
		{name: "method with equal name", hit: Hit{Name: "Audit", Kind: results.SymbolKindMethod}, want: false},
		{name: "interface with longer name", hit: Hit{Name: "AuditLog", Kind: results.SymbolKindInterface}, want: false},
		{name: "case differs", hit: Hit{Name: "audit", Kind: results.SymbolKindInterface}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDefinition(tt.hit, "Audit"))
		})
	}
}
