package exporter

import (
	"bufio"
	"fmt"
	"sort"
	"strings"

	"github.com/VladMinzatu/monodroid-extractor/internal/extractor"
	"github.com/spf13/afero"
)

// BuildFoldedStacks aggregates extracted sizes into folded stacks of the form bundle;artifact.
func BuildFoldedStacks(res *extractor.Result) map[string]uint64 {
	agg := make(map[string]uint64)
	if res == nil {
		return agg
	}
	root := escapeFoldedName(res.BundleName())
	for _, a := range res.Artifacts {
		key := root + ";" + escapeFoldedName(a.Name)
		agg[key] += a.Size
	}
	return agg
}

func escapeFoldedName(name string) string {
	// semicolons separate frames and newlines separate lines. Replace them with safe characters.
	name = strings.ReplaceAll(name, ";", "_")  // frame separator in folded stacks format
	name = strings.ReplaceAll(name, "\n", " ") // line separator
	name = strings.ReplaceAll(name, " ", "_")  // the count follows the last space
	name = strings.TrimSpace(name)
	if name == "" {
		return "<unknown>"
	}
	return name
}

func WriteFoldedStacks(fs afero.Fs, agg map[string]uint64, filename string) error {
	f, err := fs.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	type kv struct {
		k string
		v uint64
	}
	var items []kv
	for k, v := range agg {
		items = append(items, kv{k, v})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].v == items[j].v {
			return items[i].k < items[j].k
		}
		return items[i].v > items[j].v
	})

	w := bufio.NewWriter(f)
	for _, it := range items {
		if _, err := fmt.Fprintf(w, "%s %d\n", it.k, it.v); err != nil {
			return err
		}
	}
	return w.Flush()
}
