package core

import "math"

// Click saver constants.
const (
	MetersPerClick  = 0.2
	SecondsPerClick = 0.6
	metersPerMile   = 1609.344
)

// Badge is a click milestone.
type Badge struct {
	ID        string `json:"id"`
	Threshold int64  `json:"threshold"`
	Earned    bool   `json:"earned"`
}

// ClickStats derives the click saver figures from a lifetime count.
type ClickStats struct {
	Lifetime          int64   `json:"lifetime"`
	DistanceMeters    float64 `json:"distanceMeters"`
	DistanceKm        float64 `json:"distanceKm"`
	DistanceMiles     float64 `json:"distanceMiles"`
	TimeSavedSeconds  float64 `json:"timeSavedSeconds"`
	TimeSavedMinutes  float64 `json:"timeSavedMinutes"`
	Badges            []Badge `json:"badges"`
	EarnedBadges      int     `json:"earnedBadges"`
	NextBadge         string  `json:"nextBadge,omitempty"`
	ClicksToNext      int64   `json:"clicksToNext,omitempty"`
	NextBadgeProgress float64 `json:"nextBadgeProgress"`
}

var badgeThresholds = []Badge{
	{ID: "starter", Threshold: 50},
	{ID: "apprentice", Threshold: 500},
	{ID: "marathon", Threshold: 5000},
	{ID: "everest", Threshold: 100000},
}

// ComputeClickStats returns distance, time saved and badge progress for lifetime clicks.
func ComputeClickStats(lifetime int64) ClickStats {
	if lifetime < 0 {
		lifetime = 0
	}
	meters := float64(lifetime) * MetersPerClick
	seconds := float64(lifetime) * SecondsPerClick
	stats := ClickStats{
		Lifetime:          lifetime,
		DistanceMeters:    meters,
		DistanceKm:        meters / 1000,
		DistanceMiles:     meters / metersPerMile,
		TimeSavedSeconds:  seconds,
		TimeSavedMinutes:  seconds / 60,
		Badges:            make([]Badge, 0, len(badgeThresholds)),
		NextBadgeProgress: 100,
	}
	nextFound := false
	for _, badge := range badgeThresholds {
		badge.Earned = lifetime >= badge.Threshold
		if badge.Earned {
			stats.EarnedBadges++
		} else if !nextFound {
			nextFound = true
			stats.NextBadge = badge.ID
			stats.ClicksToNext = badge.Threshold - lifetime
			stats.NextBadgeProgress = math.Min(float64(lifetime)/float64(badge.Threshold)*100, 100)
		}
		stats.Badges = append(stats.Badges, badge)
	}
	return stats
}
