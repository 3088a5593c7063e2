package database

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadCameraSeed reads a JSON array of camera records. Deployments without a
// management UI keep their cameras in a checked-in file and apply it at boot.
func LoadCameraSeed(path string) ([]CameraConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading camera seed %s: %w", path, err)
	}

	var cameras []CameraConfig
	if err := json.Unmarshal(data, &cameras); err != nil {
		return nil, fmt.Errorf("parsing camera seed %s: %w", path, err)
	}
	for i := range cameras {
		if cameras[i].ID == "" {
			return nil, fmt.Errorf("camera seed %s: entry %d has no id", path, i)
		}
		if cameras[i].Name == "" {
			cameras[i].Name = cameras[i].ID
		}
	}
	return cameras, nil
}

// SeedCameras upserts the given cameras into the registry.
func (s *SQLiteDB) SeedCameras(cameras []CameraConfig) error {
	for _, c := range cameras {
		if err := s.UpsertCamera(c); err != nil {
			return fmt.Errorf("seeding camera %s: %w", c.ID, err)
		}
	}
	return nil
}
