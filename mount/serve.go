package mount

import (
	"context"
	"fmt"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	"github.com/dendrascience/shotfs/internal/logger"
)

// Serve mounts fsys read-only at mountpoint and serves it until ctx is
// cancelled or the kernel connection closes, e.g. after an external
// umount.
func Serve(ctx context.Context, mountpoint string, fsys *FS, log logger.Logger) error {
	c, err := fuse.Mount(
		mountpoint,
		fuse.FSName("shotfs"),
		fuse.Subtype("shotfs"),
		fuse.ReadOnly(),
	)
	if err != nil {
		return fmt.Errorf("mount %s: %w", mountpoint, err)
	}
	defer c.Close()

	errc := make(chan error, 1)
	go func() {
		errc <- fusefs.Serve(c, fsys)
	}()
	log.Info("Filesystem mounted", logger.String("mountpoint", mountpoint))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("Unmounting filesystem", logger.String("mountpoint", mountpoint))
	if err := fuse.Unmount(mountpoint); err != nil {
		return fmt.Errorf("unmount %s: %w", mountpoint, err)
	}
	return <-errc
}
