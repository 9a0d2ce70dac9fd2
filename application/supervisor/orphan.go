package supervisor

import (
	"fmt"

	gopsprocess "github.com/shirou/gopsutil/v3/process"
)

// OrphanKiller enumerates and kills any process matching imageName,
// belt-and-braces cleanup for orphans left behind by a prior crash
// (spec §4.5 "Stop"). Supplemented from
// original_source/src/service/handle.rs, which used the Rust `sysinfo`
// crate's System::processes_by_name for the same purpose; gopsutil/v3
// is its Go ecosystem analogue.
type OrphanKiller interface {
	KillByImageName(imageName string) error
}

type gopsutilOrphanKiller struct{}

// NewOrphanKiller constructs the production OrphanKiller.
func NewOrphanKiller() OrphanKiller {
	return &gopsutilOrphanKiller{}
}

func (k *gopsutilOrphanKiller) KillByImageName(imageName string) error {
	procs, err := gopsprocess.Processes()
	if err != nil {
		return fmt.Errorf("failed to enumerate processes: %w", err)
	}

	var killErr error
	for _, p := range procs {
		name, nameErr := p.Name()
		if nameErr != nil || name != imageName {
			continue
		}
		if err := p.Kill(); err != nil && killErr == nil {
			killErr = fmt.Errorf("failed to kill orphan %s (pid %d): %w", imageName, p.Pid, err)
		}
	}
	return killErr
}
