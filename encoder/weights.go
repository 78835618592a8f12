package encoder

import (
	"fmt"
	"log"
	"reflect"
	"sort"
	"strings"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// LoadPretrained loads a weight file into the variables of vs under prefix,
// matching by name.
//
// Variables outside prefix (e.g. a freshly initialised decoder) are left
// untouched, and file entries with no matching variable are ignored. A
// variable under prefix that is absent from the file, or whose shape differs,
// is an error listing every such name; nothing is copied in that case. An
// empty prefix covers the whole store.
func LoadPretrained(vs *nn.VarStore, path, prefix string) error {
	log.Printf("Loading pretrained encoder weights from %q...\n", path)
	named, err := ts.LoadMultiWithDevice(path, vs.Device())
	if err != nil {
		return fmt.Errorf("encoder: load weights %q: %w", path, err)
	}
	loaded := make(map[string]*ts.Tensor, len(named))
	for _, nt := range named {
		loaded[nt.Name] = nt.Tensor
	}
	defer func() {
		for _, x := range loaded {
			x.MustDrop()
		}
	}()

	vars := vs.Variables()
	var names, missing, mismatched []string
	for name, v := range vars {
		if prefix != "" && !strings.HasPrefix(name, prefix+".") {
			continue
		}
		src, ok := loaded[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		if want, got := v.MustSize(), src.MustSize(); !reflect.DeepEqual(want, got) {
			mismatched = append(mismatched, fmt.Sprintf("%s (want %v, got %v)", name, want, got))
			continue
		}
		names = append(names, name)
	}

	var problems []string
	if len(missing) > 0 {
		sort.Strings(missing)
		problems = append(problems, fmt.Sprintf("%d variables missing: %s", len(missing), strings.Join(missing, ", ")))
	}
	if len(mismatched) > 0 {
		sort.Strings(mismatched)
		problems = append(problems, fmt.Sprintf("%d shape mismatches: %s", len(mismatched), strings.Join(mismatched, ", ")))
	}
	if len(problems) > 0 {
		return fmt.Errorf("encoder: weights %q: %s", path, strings.Join(problems, "; "))
	}

	ts.NoGrad(func() {
		for _, name := range names {
			dst := vars[name]
			dst.Copy_(loaded[name])
		}
	})

	log.Printf("Loaded %d pretrained encoder variables (%d other variables left initialised)\n", len(names), len(vars)-len(names))
	return nil
}
