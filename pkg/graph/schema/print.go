package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/graphql-go/graphql"
)

// Print renders a compiled schema in SDL for the introspection-free
// /schema endpoint. Output is deterministic: types and fields are
// emitted in lexical order.
func Print(schema graphql.Schema) string {
	var sb strings.Builder

	roots := map[string]bool{}
	var rootOrder []*graphql.Object
	if q := schema.QueryType(); q != nil {
		roots[q.Name()] = true
		rootOrder = append(rootOrder, q)
	}
	if m := schema.MutationType(); m != nil {
		roots[m.Name()] = true
		rootOrder = append(rootOrder, m)
	}
	if s := schema.SubscriptionType(); s != nil {
		roots[s.Name()] = true
		rootOrder = append(rootOrder, s)
	}

	for _, obj := range rootOrder {
		printObject(&sb, obj)
	}

	typeMap := schema.TypeMap()
	names := make([]string, 0, len(typeMap))
	for name := range typeMap {
		if strings.HasPrefix(name, "__") || roots[name] || builtinScalar(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		switch t := typeMap[name].(type) {
		case *graphql.Object:
			printObject(&sb, t)
		case *graphql.Enum:
			printEnum(&sb, t)
		case *graphql.Scalar:
			fmt.Fprintf(&sb, "scalar %s\n\n", t.Name())
		}
	}

	return strings.TrimRight(sb.String(), "\n") + "\n"
}

func printObject(sb *strings.Builder, obj *graphql.Object) {
	fmt.Fprintf(sb, "type %s {\n", obj.Name())

	fields := obj.Fields()
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fd := fields[name]
		if len(fd.Args) == 0 {
			fmt.Fprintf(sb, "  %s: %s\n", name, fd.Type.String())
			continue
		}
		args := make([]string, 0, len(fd.Args))
		for _, arg := range fd.Args {
			args = append(args, fmt.Sprintf("%s: %s", arg.Name(), arg.Type.String()))
		}
		sort.Strings(args)
		fmt.Fprintf(sb, "  %s(%s): %s\n", name, strings.Join(args, ", "), fd.Type.String())
	}
	sb.WriteString("}\n\n")
}

func printEnum(sb *strings.Builder, enum *graphql.Enum) {
	fmt.Fprintf(sb, "enum %s {\n", enum.Name())
	values := enum.Values()
	names := make([]string, 0, len(values))
	for _, v := range values {
		names = append(names, v.Name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(sb, "  %s\n", name)
	}
	sb.WriteString("}\n\n")
}

func builtinScalar(name string) bool {
	switch name {
	case "String", "Int", "Float", "Boolean", "ID":
		return true
	}
	return false
}
