package unet

import (
	"fmt"
)

// Level describes one encoder/decoder level of a BaseUNet.
//
// Levels are ordered outermost first. The last level is the terminal block,
// which has no skip, downsampling or upsampling.
type Level struct {
	Index          int   // 0 is the outermost level
	Depth          int   // remaining depth, 0 is the terminal level
	Filters        int64 // convolution filters of this level
	Height, Width  int64 // spatial size entering the level
	InChannels     int64 // channels entering the level
	SkipChannels   int64 // channels of the encode block output
	DownChannels   int64 // channels after downsampling
	ConcatChannels int64 // skip plus upsampled channels
	OutChannels    int64 // channels leaving the level
}

// Terminal reports whether l is the innermost block.
func (l Level) Terminal() bool {
	return l.Depth == 0
}

// blockChannels is the output width of a conv block.
func blockChannels(cIn, filters int64, residual bool) int64 {
	if residual {
		return cIn + filters
	}
	return filters
}

// PlanLevels lays out the levels of a BaseUNet.
//
// Filters grow by IncRate per level, truncated at every step. Spatial size
// halves per level and must stay even until the terminal level so that
// every skip concatenation lines up.
func PlanLevels(cfg Config) ([]Level, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	levels := make([]Level, cfg.Depth+1)
	filters := cfg.NumFilters
	h, w := cfg.InputShape[0], cfg.InputShape[1]
	cIn := cfg.InChannels
	for i := range levels {
		if filters <= 0 {
			return nil, fmt.Errorf("unet: level %d has %d filters (num filters %d, inc rate %v)", i, filters, cfg.NumFilters, cfg.IncRate)
		}
		l := Level{
			Index:      i,
			Depth:      cfg.Depth - i,
			Filters:    filters,
			Height:     h,
			Width:      w,
			InChannels: cIn,
		}
		if !l.Terminal() {
			if h%2 != 0 || w%2 != 0 {
				return nil, fmt.Errorf("unet: input shape %v is not divisible by 2^%d (level %d is %dx%d)", cfg.InputShape, cfg.Depth, i, h, w)
			}
			l.SkipChannels = blockChannels(cIn, filters, cfg.Residual)
			l.DownChannels = l.SkipChannels
			if !cfg.MaxPool {
				l.DownChannels = filters
			}
			cIn = l.DownChannels
			h, w = h/2, w/2
			filters = int64(cfg.IncRate * float64(filters))
		}
		levels[i] = l
	}

	last := len(levels) - 1
	levels[last].OutChannels = blockChannels(levels[last].InChannels, levels[last].Filters, cfg.Residual)
	for i := last - 1; i >= 0; i-- {
		l := &levels[i]
		l.ConcatChannels = l.SkipChannels + l.Filters
		l.OutChannels = blockChannels(l.ConcatChannels, l.Filters, cfg.Residual)
	}

	return levels, nil
}
