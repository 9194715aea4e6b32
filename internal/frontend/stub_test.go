package frontend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextScanFrontEndCollectsIncludesAndDefinitions(t *testing.T) {
	fe := NewTextScanFrontEnd(map[string]string{
		"a.c": "#include \"h.h\"\nint foo(void) {\n  return 0;\n}\n",
	})

	tu, err := fe.Parse(context.Background(), "a.c", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"h.h"}, tu.IncludedFiles)

	require.Len(t, tu.Cursors, 1)
	assert.True(t, tu.Cursors[0].IsDeclaration)
	assert.Equal(t, "foo", tu.Cursors[0].Name)
}

func TestTextScanFrontEndResolvesLocalCallToExternDecl(t *testing.T) {
	fe := NewTextScanFrontEnd(map[string]string{
		"b.c": "extern int foo(void);\nint main(void) {\n  return foo();\n}\n",
	})

	tu, err := fe.Parse(context.Background(), "b.c", nil)
	require.NoError(t, err)

	var call *CursorEvent
	for i := range tu.Cursors {
		if tu.Cursors[i].Name == "foo" && tu.Cursors[i].Reference != nil {
			call = &tu.Cursors[i]
		}
	}
	require.NotNil(t, call)
	assert.Equal(t, uint32(0), call.Reference.Target.Offset)
}

func TestTextScanFrontEndUnknownFileErrors(t *testing.T) {
	fe := NewTextScanFrontEnd(nil)
	_, err := fe.Parse(context.Background(), "missing.c", nil)
	assert.Error(t, err)
}

func TestTextScanFrontEndHonorsCancellation(t *testing.T) {
	fe := NewTextScanFrontEnd(map[string]string{"a.c": "int foo(void) {}\n"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fe.Parse(ctx, "a.c", nil)
	assert.Error(t, err)
}
