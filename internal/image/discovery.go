package image

import (
	"sort"
	"strings"

	"github.com/nace/zimage/internal/system"
)

// Attachment describes a loop-attached image file and, when one of its
// partitions backs an imported pool, that pool's name and altroot.
type Attachment struct {
	ImagePath  string `json:"image_path"`
	LoopDevice string `json:"loop_device"`
	Pool       string `json:"pool,omitempty"`
	AltRoot    string `json:"alt_root,omitempty"`
}

// Discovery correlates loop devices with imported pools by querying system
// state, so list and unmount work without any local bookkeeping.
type Discovery struct {
	runner system.Runner
	loops  *LoopManager
}

// NewDiscovery creates a new discovery instance
func NewDiscovery(runner system.Runner) *Discovery {
	return &Discovery{
		runner: runner,
		loops:  NewLoopManager(runner),
	}
}

// DiscoverActive returns all loop-attached image files, annotated with the
// pool imported from them, if any.
func (d *Discovery) DiscoverActive() ([]Attachment, error) {
	devices, err := d.loops.GetAll()
	if err != nil {
		return nil, err
	}

	pools := d.importedPools()

	var attachments []Attachment
	for device, backFile := range devices {
		att := Attachment{
			ImagePath:  backFile,
			LoopDevice: device,
		}

		for _, pool := range pools {
			status, err := d.runner.RunOutput("zpool", "status", "-P", pool)
			if err != nil {
				continue
			}
			if strings.Contains(status, device) {
				att.Pool = pool
				att.AltRoot = d.poolAltRoot(pool)
				break
			}
		}

		attachments = append(attachments, att)
	}

	sort.Slice(attachments, func(i, j int) bool {
		return attachments[i].LoopDevice < attachments[j].LoopDevice
	})
	return attachments, nil
}

func (d *Discovery) importedPools() []string {
	output, err := d.runner.RunOutput("zpool", "list", "-H", "-o", "name")
	if err != nil {
		return nil
	}
	output = strings.TrimSpace(output)
	if output == "" || output == "no pools available" {
		return nil
	}
	return strings.Split(output, "\n")
}

func (d *Discovery) poolAltRoot(pool string) string {
	output, err := d.runner.RunOutput("zpool", "get", "-H", "-o", "value", "altroot", pool)
	if err != nil {
		return ""
	}
	value := strings.TrimSpace(output)
	if value == "-" {
		return ""
	}
	return value
}
