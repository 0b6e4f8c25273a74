package schema

import (
	"testing"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNamedObject(name string) *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name: name,
		Fields: graphql.Fields{
			"name": {Type: graphql.String},
		},
	})
}

func TestBuilderRejectsDuplicates(t *testing.T) {
	b := NewBuilder()

	require.NoError(t, b.AddObject(newNamedObject("Instance")))
	assert.Error(t, b.AddObject(newNamedObject("Instance")))

	require.NoError(t, AddUpdateTypeEnum(b))
	assert.Error(t, AddUpdateTypeEnum(b))

	// Enum and object names share one namespace.
	assert.Error(t, b.AddObject(newNamedObject(UpdateTypeEnumName)))

	field := &graphql.Field{Type: graphql.String, Resolve: func(graphql.ResolveParams) (interface{}, error) { return "", nil }}
	require.NoError(t, b.AddQueryField("instance", field))
	assert.Error(t, b.AddQueryField("instance", field))
}

func TestBuilderBuildRequiresQueryField(t *testing.T) {
	b := NewBuilder()
	_, err := b.Build()
	assert.Error(t, err)
}

func TestBuilderBuildCompiles(t *testing.T) {
	b := NewBuilder()
	obj := newNamedObject("Instance")
	require.NoError(t, b.AddObject(obj))
	require.NoError(t, b.AddQueryField("instance", &graphql.Field{
		Type: obj,
		Resolve: func(graphql.ResolveParams) (interface{}, error) {
			return map[string]interface{}{"name": "demo"}, nil
		},
	}))

	compiled, err := b.Build()
	require.NoError(t, err)

	result := graphql.Do(graphql.Params{
		Schema:        compiled,
		RequestString: `{ instance { name } }`,
	})
	require.Empty(t, result.Errors)
	assert.Equal(t, map[string]interface{}{
		"instance": map[string]interface{}{"name": "demo"},
	}, result.Data)
}

func TestPrintRendersDeterministicSDL(t *testing.T) {
	b := NewBuilder()
	obj := graphql.NewObject(graphql.ObjectConfig{
		Name: "Instance",
		Fields: graphql.Fields{
			"name": {Type: graphql.String},
			"spec": {Type: JSON},
		},
	})
	require.NoError(t, b.AddObject(obj))
	require.NoError(t, AddUpdateTypeEnum(b))
	require.NoError(t, b.AddQueryField("instance", &graphql.Field{
		Type: obj,
		Args: graphql.FieldConfigArgument{
			"name":      {Type: graphql.NewNonNull(graphql.String)},
			"namespace": {Type: graphql.NewNonNull(graphql.String)},
		},
		Resolve: func(graphql.ResolveParams) (interface{}, error) { return nil, nil },
	}))

	compiled, err := b.Build()
	require.NoError(t, err)

	sdl := Print(compiled)
	assert.Contains(t, sdl, "type Query {")
	assert.Contains(t, sdl, "instance(name: String!, namespace: String!): Instance")
	assert.Contains(t, sdl, "type Instance {")
	assert.Contains(t, sdl, "spec: JSON")
	assert.Contains(t, sdl, "enum UpdateType {")
	assert.Contains(t, sdl, "ADDED")
	assert.Contains(t, sdl, "scalar JSON")
	assert.NotContains(t, sdl, "__Schema")

	assert.Equal(t, sdl, Print(compiled))
}
