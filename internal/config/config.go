// Package config reads the daemon's INI configuration file: three
// project groups, one subsection per project. gcfg maps INI
// sections-with-subsections onto Go structs directly, which is exactly
// this file's shape.
package config

import (
	"github.com/go-git/gcfg"
)

// ProjectEntry is one subsection under a project group: the on-disk
// root gcfg maps a [Group "name"] section onto, plus any extra compiler
// flags to append to every compile command recorded for it.
type ProjectEntry struct {
	Path       string
	ExtraFlags []string
}

// File is the parsed form of the whole config file: three project
// groups, Makefiles, GRTags, and SmartProjects.
type File struct {
	Makefiles     map[string]*ProjectEntry
	GRTags        map[string]*ProjectEntry
	SmartProjects map[string]*ProjectEntry
}

// Load reads and parses the config file at path.
func Load(path string) (*File, error) {
	var f File
	if err := gcfg.ReadFileInto(&f, path); err != nil {
		return nil, err
	}
	return &f, nil
}

// Parse parses config file contents already in memory, for tests and
// for config supplied over the wire instead of from disk.
func Parse(contents string) (*File, error) {
	var f File
	if err := gcfg.ReadStringInto(&f, contents); err != nil {
		return nil, err
	}
	return &f, nil
}

// ProjectKind identifies which group a project came from, mirroring the
// ProjectMessage.type values a client can submit.
type ProjectKind int

const (
	KindMakefile ProjectKind = iota
	KindGRTags
	KindSmart
)

// Project names one configured project root.
type Project struct {
	Kind  ProjectKind
	Name  string
	Entry *ProjectEntry
}

// Projects flattens the three groups into one ordered-by-kind list,
// which is what Server.LoadConfig consults when opening configured
// projects on startup. The ReloadProjects query does not use it.
func (f *File) Projects() []Project {
	var out []Project
	for name, entry := range f.Makefiles {
		out = append(out, Project{Kind: KindMakefile, Name: name, Entry: entry})
	}
	for name, entry := range f.GRTags {
		out = append(out, Project{Kind: KindGRTags, Name: name, Entry: entry})
	}
	for name, entry := range f.SmartProjects {
		out = append(out, Project{Kind: KindSmart, Name: name, Entry: entry})
	}
	return out
}
