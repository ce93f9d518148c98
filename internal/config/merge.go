package config

// mergeConfigs merges a per-repo overlay config into the global base
// config. Scalars: overlay wins if non-zero. Slices: overlay entries are
// appended. Maps: overlay wins per-key.
func mergeConfigs(base, overlay *Config) *Config {
	if overlay == nil {
		return base
	}
	if base == nil {
		return overlay
	}

	result := *base

	if overlay.Sandbox.BasePath != "" {
		result.Sandbox.BasePath = overlay.Sandbox.BasePath
	}
	if overlay.Sandbox.DockerfilePath != "" {
		result.Sandbox.DockerfilePath = overlay.Sandbox.DockerfilePath
	}

	if len(overlay.Overlay.CredentialDirs) > 0 {
		result.Overlay.CredentialDirs = append(
			append([]string{}, base.Overlay.CredentialDirs...),
			overlay.Overlay.CredentialDirs...,
		)
	}
	if len(overlay.Overlay.CacheDirs) > 0 {
		result.Overlay.CacheDirs = append(
			append([]string{}, base.Overlay.CacheDirs...),
			overlay.Overlay.CacheDirs...,
		)
	}

	if len(overlay.Logging.Receivers) > 0 {
		result.Logging.Receivers = append(
			append([]ReceiverConfig{}, base.Logging.Receivers...),
			overlay.Logging.Receivers...,
		)
	}
	result.Logging.Attributes = mergeStringMap(base.Logging.Attributes, overlay.Logging.Attributes)

	return &result
}

// mergeStringMap merges two string maps, overlay wins for conflicts.
func mergeStringMap(base, overlay map[string]string) map[string]string {
	if base == nil && overlay == nil {
		return nil
	}
	result := make(map[string]string)
	for k, v := range base {
		result[k] = v
	}
	for k, v := range overlay {
		result[k] = v
	}
	return result
}
