// Package inspect summarises the structure of built models: variable tables,
// per-module parameter counts and output statistics.
package inspect

import (
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/sugarme/gotch/nn"
)

// VarInfo describes one variable of a var store.
type VarInfo struct {
	Name   string
	Shape  []int64
	Params int
}

// Summarize lists the variables of vs sorted by name.
func Summarize(vs *nn.VarStore) []VarInfo {
	vars := vs.Variables()
	infos := make([]VarInfo, 0, len(vars))
	for name, v := range vars {
		size := v.MustSize()
		params := 1
		for _, d := range size {
			params *= int(d)
		}
		infos = append(infos, VarInfo{Name: name, Shape: size, Params: params})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// TotalParams sums the parameter counts of vars.
func TotalParams(vars []VarInfo) int {
	total := 0
	for _, v := range vars {
		total += v.Params
	}
	return total
}

// SameStructure reports the first difference between two summaries, or nil if
// they have the same variables with the same shapes.
func SameStructure(a, b []VarInfo) error {
	if len(a) != len(b) {
		return fmt.Errorf("inspect: %d variables vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Name != b[i].Name {
			return fmt.Errorf("inspect: variable %d is %q vs %q", i, a[i].Name, b[i].Name)
		}
		if !reflect.DeepEqual(a[i].Shape, b[i].Shape) {
			return fmt.Errorf("inspect: %q has shape %v vs %v", a[i].Name, a[i].Shape, b[i].Shape)
		}
	}
	return nil
}

// Frame builds a dataframe with name, group, shape and params columns.
func Frame(vars []VarInfo) dataframe.DataFrame {
	names := make([]string, len(vars))
	groups := make([]string, len(vars))
	shapes := make([]string, len(vars))
	params := make([]int, len(vars))
	for i, v := range vars {
		names[i] = v.Name
		groups[i] = groupName(v.Name, 1)
		shapes[i] = fmt.Sprint(v.Shape)
		params[i] = v.Params
	}

	return dataframe.New(
		series.New(names, series.String, "name"),
		series.New(groups, series.String, "group"),
		series.New(shapes, series.String, "shape"),
		series.New(params, series.Int, "params"),
	)
}

// WriteCSV writes the variable table as CSV.
func WriteCSV(w io.Writer, vars []VarInfo) error {
	df := Frame(vars)
	if df.Err != nil {
		return df.Err
	}
	return df.WriteCSV(w)
}

// GroupInfo is the parameter count of a module subtree.
type GroupInfo struct {
	Name   string
	Vars   int
	Params int
}

// groupName keeps the first depth components of a dotted variable name,
// dropping the variable's own name.
func groupName(name string, depth int) string {
	parts := strings.Split(name, ".")
	if len(parts) > 1 {
		parts = parts[:len(parts)-1]
	}
	if len(parts) > depth {
		parts = parts[:depth]
	}
	return strings.Join(parts, ".")
}

// GroupParams aggregates vars by the first depth components of their names,
// in order of first appearance.
func GroupParams(vars []VarInfo, depth int) []GroupInfo {
	index := make(map[string]int)
	var groups []GroupInfo
	for _, v := range vars {
		g := groupName(v.Name, depth)
		i, ok := index[g]
		if !ok {
			i = len(groups)
			index[g] = i
			groups = append(groups, GroupInfo{Name: g})
		}
		groups[i].Vars++
		groups[i].Params += v.Params
	}
	return groups
}
