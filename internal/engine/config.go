package engine

import (
	"github.com/yegors/planereports/internal/dedup"
	"github.com/yegors/planereports/internal/geo"
	"github.com/yegors/planereports/internal/outlier"
	"github.com/yegors/planereports/internal/runway"
	"github.com/yegors/planereports/internal/visit"
)

// Stage selects which parts of the pipeline run
type Stage uint8

const (
	StageDedup Stage = 1 << iota
	StageOutlier
	StageEvents

	AllStages = StageDedup | StageOutlier | StageEvents
)

// Has reports whether s includes the given stage
func (s Stage) Has(stage Stage) bool {
	return s&stage != 0
}

// Config holds the engine tunables
type Config struct {
	Stages Stage

	MinTurnaroundSeconds      int64
	BearingToleranceDegrees   float64
	DistanceFudgeMeters       float64
	DuplicateStalenessSeconds int64
	LocationPrecision         int
	Metric                    geo.Metric
	Segmentation              visit.Policy

	// Only reports inside an airport's approach band are segmented for it
	PrefilterApproachBand bool
	FloorMarginMeters     float64
	CommittedHeightMeters float64

	Workers int // Aircraft processed concurrently by Run
}

// DefaultConfig returns the standard tunables
func DefaultConfig() Config {
	return Config{
		Stages:                    AllStages,
		MinTurnaroundSeconds:      visit.DefaultMinTurnaroundSeconds,
		BearingToleranceDegrees:   runway.DefaultBearingTolerance,
		DistanceFudgeMeters:       outlier.DefaultFudgeMeters,
		DuplicateStalenessSeconds: dedup.DefaultConfig().StalenessSeconds,
		LocationPrecision:         dedup.DefaultConfig().LocationPrecision,
		Metric:                    geo.Haversine,
		Segmentation:              visit.GapOnly,
		PrefilterApproachBand:     true,
		FloorMarginMeters:         runway.DefaultFloorMargin,
		CommittedHeightMeters:     runway.DefaultCommittedHeight,
		Workers:                   4,
	}
}

func (c Config) dedupConfig() dedup.Config {
	return dedup.Config{
		StalenessSeconds:  c.DuplicateStalenessSeconds,
		LocationPrecision: c.LocationPrecision,
	}
}
