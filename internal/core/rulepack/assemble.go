package rulepack

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	perr "turnstiled/internal/platform/errors"
)

// Fragment is one source file of a pack
type Fragment struct {
	Path  string
	rules []rawRule
}

// FindFragments lists the .json, .yaml and .yml files under dir in lexical order.
// Directories named schema are skipped
func FindFragments(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && d.Name() == "schema" {
				return filepath.SkipDir
			}
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json", ".yaml", ".yml":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeDetection, "rulepack: walk %s", dir)
	}
	sort.Strings(files)
	return files, nil
}

// ReadFragment decodes a fragment. Version is optional in fragments but must be 1 when set
func ReadFragment(path string) (Fragment, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Fragment{}, perr.Wrapf(err, perr.ErrorCodeDetection, "rulepack: read %s", path)
	}
	var rp rawPack
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &rp)
	default:
		err = json.Unmarshal(b, &rp)
	}
	if err != nil {
		return Fragment{}, perr.Wrapf(err, perr.ErrorCodeDetection, "rulepack: decode %s", path)
	}
	if rp.Version != 0 && rp.Version != 1 {
		return Fragment{}, perr.Detectionf("rulepack: %s: unsupported version %d", path, rp.Version)
	}
	return Fragment{Path: path, rules: rp.Rules}, nil
}

// Assemble merges fragments into one JSON pack. The first rule with a given id wins;
// later ones are reported in dups. The merged pack is compiled before it is returned
func Assemble(frags []Fragment) (out []byte, dups []string, err error) {
	merged := rawPack{Version: 1}
	seen := map[string]struct{}{}
	for _, f := range frags {
		for _, r := range f.rules {
			id := strings.TrimSpace(r.ID)
			if _, dup := seen[id]; dup && id != "" {
				dups = append(dups, f.Path+": "+id)
				continue
			}
			seen[id] = struct{}{}
			r.ID = id
			merged.Rules = append(merged.Rules, r)
		}
	}
	sort.SliceStable(merged.Rules, func(i, j int) bool { return merged.Rules[i].ID < merged.Rules[j].ID })

	out, err = json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return nil, dups, perr.Wrap(err, perr.ErrorCodeDetection, "rulepack: encode")
	}
	if _, err := Parse(out, "json"); err != nil {
		return nil, dups, err
	}
	return out, dups, nil
}

// AssembleDir is FindFragments, ReadFragment and Assemble over dir
func AssembleDir(dir string) ([]byte, []string, error) {
	paths, err := FindFragments(dir)
	if err != nil {
		return nil, nil, err
	}
	if len(paths) == 0 {
		return nil, nil, perr.Detectionf("rulepack: no fragment files under %s", dir)
	}
	frags := make([]Fragment, 0, len(paths))
	for _, p := range paths {
		f, err := ReadFragment(p)
		if err != nil {
			return nil, nil, err
		}
		frags = append(frags, f)
	}
	return Assemble(frags)
}
