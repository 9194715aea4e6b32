package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
[Makefiles "proj1"]
path = /home/user/proj1
extraFlags = -std=c11
extraFlags = -Wall

[GRTags "proj2"]
path = /home/user/proj2

[SmartProjects "proj3"]
path = /home/user/proj3
`

func TestParseGroupsAndSubsections(t *testing.T) {
	f, err := Parse(sample)
	require.NoError(t, err)

	require.Contains(t, f.Makefiles, "proj1")
	assert.Equal(t, "/home/user/proj1", f.Makefiles["proj1"].Path)
	assert.Equal(t, []string{"-std=c11", "-Wall"}, f.Makefiles["proj1"].ExtraFlags)

	require.Contains(t, f.GRTags, "proj2")
	require.Contains(t, f.SmartProjects, "proj3")
}

func TestProjectsFlattensAllGroups(t *testing.T) {
	f, err := Parse(sample)
	require.NoError(t, err)

	projects := f.Projects()
	assert.Len(t, projects, 3)

	kinds := map[ProjectKind]int{}
	for _, p := range projects {
		kinds[p.Kind]++
	}
	assert.Equal(t, 1, kinds[KindMakefile])
	assert.Equal(t, 1, kinds[KindGRTags])
	assert.Equal(t, 1, kinds[KindSmart])
}

func TestParseInvalidSyntaxErrors(t *testing.T) {
	_, err := Parse("[Makefiles\npath = x")
	assert.Error(t, err)
}
