package config

import "github.com/spf13/viper"

// defaultDatasets is the dataset table of the map website.
var defaultDatasets = []map[string]any{
	dataset("waterfalls.json", "waterfall", "poi", "auto"),
	dataset("breweries.json", "brewery", "poi", "auto"),
	dataset("restaurants.json", "restaurant", "poi", "auto"),
	dataset("children.json", "activity", "poi", "auto"),
	dataset("trail-heads.json", "trailhead", "poi", "regions"),
	dataset("our-airbnbs.json", "accommodation", "poi", "auto"),
	dataset("points_of_interest.json", "attraction", "poi", "auto"),
	dataset("pyo_apples.json", "orchard", "poi", "auto"),
	dataset("pyo_strawberries.json", "orchard", "poi", "auto"),
	dataset("pyo_cherries.json", "orchard", "poi", "auto"),
	dataset("pyo_peaches.json", "orchard", "poi", "auto"),
	dataset("map-data.json", "city", "area", "cities"),
}

func dataset(file, context, class, layout string) map[string]any {
	return map[string]any{"file": file, "context": context, "class": class, "layout": layout}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")

	v.SetDefault("region.state", "NY")
	v.SetDefault("region.country", "USA")
	v.SetDefault("region.country_code", "us")
	v.SetDefault("region.bounds.lat_min", 40.4)
	v.SetDefault("region.bounds.lat_max", 45.1)
	v.SetDefault("region.bounds.lng_min", -79.9)
	v.SetDefault("region.bounds.lng_max", -71.7)

	v.SetDefault("provider.type", "google")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.timeout", "10s")
	v.SetDefault("provider.rate_limit", 10)
	v.SetDefault("provider.user_agent", "pinpoint/1.0 (https://github.com/UnknownOlympus/pinpoint)")
	v.SetDefault("provider.base_url", "")

	v.SetDefault("resolver.search_radius", 2000)
	v.SetDefault("resolver.max_distance_poi", 3000)
	v.SetDefault("resolver.max_distance_area", 10000)
	v.SetDefault("resolver.coordinate_threshold", 0.0001)
	v.SetDefault("resolver.drift_threshold_poi", 30)
	v.SetDefault("resolver.drift_threshold_area", 1000)
	v.SetDefault("resolver.report_threshold_poi", 100)
	v.SetDefault("resolver.report_threshold_area", 1000)
	v.SetDefault("resolver.fetch_details", true)
	v.SetDefault("resolver.search_mode", "text")
	v.SetDefault("resolver.require_coordinates", false)
	v.SetDefault("resolver.seed_existing_ids", false)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", "2s")
	v.SetDefault("retry.max_delay", "30s")

	v.SetDefault("pacing.base_delay", "100ms")
	v.SetDefault("pacing.after_5", "150ms")
	v.SetDefault("pacing.after_10", "250ms")
	v.SetDefault("pacing.jitter_min", 0.8)
	v.SetDefault("pacing.jitter_max", 1.2)

	v.SetDefault("cache.backend", CacheFile)
	v.SetDefault("cache.file", ".places_cache.json")
	v.SetDefault("cache.ttl", "720h")
	v.SetDefault("cache.verify_ttl", "4320h")

	v.SetDefault("status.interval", "720h")
	v.SetDefault("status.datasets", []string{"restaurants.json"})

	v.SetDefault("paths.data_dir", "public/data")
	v.SetDefault("paths.backup_dir", "backups")
	v.SetDefault("backup_files", true)

	v.SetDefault("database.host", "")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.db_name", "")

	v.SetDefault("datasets", defaultDatasets)
}
