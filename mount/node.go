package mount

import (
	"context"
	"os"
	"syscall"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	"github.com/dendrascience/shotfs/internal/logger"
	"github.com/dendrascience/shotfs/util"
)

// FS adapts a Filesystem to bazil.org/fuse.
type FS struct {
	fsys *Filesystem
	log  logger.Logger
	uid  uint32
	gid  uint32
}

var (
	_ fusefs.FS                 = (*FS)(nil)
	_ fusefs.NodeStringLookuper = (*Dir)(nil)
	_ fusefs.HandleReadDirAller = (*Dir)(nil)
	_ fusefs.NodeOpener         = (*File)(nil)
	_ fusefs.HandleReader       = (*Handle)(nil)
	_ fusefs.HandleWriter       = (*Handle)(nil)
)

// NewFS wraps fsys. Files are owned by the calling user.
func NewFS(fsys *Filesystem, log logger.Logger) *FS {
	if log == nil {
		log = logger.NewNop()
	}
	return &FS{
		fsys: fsys,
		log:  log,
		uid:  uint32(os.Getuid()),
		gid:  uint32(os.Getgid()),
	}
}

func (f *FS) Root() (fusefs.Node, error) {
	return &Dir{fs: f, path: "/"}, nil
}

func (f *FS) fill(path string, attrs Attributes, a *fuse.Attr) {
	a.Inode = util.InodeForPath(path)
	a.Mode = attrs.Mode
	a.Size = uint64(attrs.Size)
	a.Mtime = attrs.ModTime
	a.Atime = attrs.ModTime
	a.Ctime = attrs.ModTime
	a.Uid = f.uid
	a.Gid = f.gid
	a.BlockSize = 4096
	a.Blocks = (a.Size + 511) / 512
}

// fuseError logs unexpected failures and converts err to an errno.
func (f *FS) fuseError(err error) error {
	if err != nil && !isMiss(err) {
		f.log.Error("Filesystem operation failed", logger.Error(err))
	}
	return ToFuseError(err)
}

func childPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}

// Dir is a directory node at any level of the tree.
type Dir struct {
	fs   *FS
	path string
}

func (d *Dir) Attr(ctx context.Context, a *fuse.Attr) error {
	attrs, err := d.fs.fsys.Attributes(ctx, d.path)
	if err != nil {
		return d.fs.fuseError(err)
	}
	d.fs.fill(d.path, attrs, a)
	return nil
}

func (d *Dir) Lookup(ctx context.Context, name string) (fusefs.Node, error) {
	path := childPath(d.path, name)
	attrs, err := d.fs.fsys.Attributes(ctx, path)
	if err != nil {
		return nil, d.fs.fuseError(err)
	}
	if attrs.IsDir() {
		return &Dir{fs: d.fs, path: path}, nil
	}
	return &File{fs: d.fs, path: path}, nil
}

func (d *Dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	entries, err := d.fs.fsys.List(ctx, d.path)
	if err != nil {
		return nil, d.fs.fuseError(err)
	}

	dirents := make([]fuse.Dirent, 0, len(entries))
	for _, e := range entries {
		dirent := fuse.Dirent{Name: e.Name, Type: fuse.DT_File}
		if e.Dir {
			dirent.Type = fuse.DT_Dir
		}
		switch e.Name {
		case ".":
			dirent.Inode = util.InodeForPath(d.path)
		case "..":
		default:
			dirent.Inode = util.InodeForPath(childPath(d.path, e.Name))
		}
		dirents = append(dirents, dirent)
	}
	return dirents, nil
}

func (d *Dir) Create(ctx context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fusefs.Node, fusefs.Handle, error) {
	return nil, nil, syscall.EPERM
}

func (d *Dir) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fusefs.Node, error) {
	return nil, syscall.EPERM
}

func (d *Dir) Remove(ctx context.Context, req *fuse.RemoveRequest) error {
	return syscall.EPERM
}

func (d *Dir) Rename(ctx context.Context, req *fuse.RenameRequest, newDir fusefs.Node) error {
	return syscall.EPERM
}

func (d *Dir) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	return syscall.EPERM
}

// File is a capture image.
type File struct {
	fs   *FS
	path string
}

func (f *File) Attr(ctx context.Context, a *fuse.Attr) error {
	attrs, err := f.fs.fsys.Attributes(ctx, f.path)
	if err != nil {
		return f.fs.fuseError(err)
	}
	f.fs.fill(f.path, attrs, a)
	return nil
}

// Open only allows reading. Reads bypass the page cache since a
// placeholder is replaced in place once the capture finishes.
func (f *File) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fusefs.Handle, error) {
	if !req.Flags.IsReadOnly() {
		f.fs.log.Debug("Rejected write open", logger.String("path", f.path))
		return nil, syscall.EPERM
	}
	resp.Flags |= fuse.OpenDirectIO
	return &Handle{fs: f.fs, path: f.path}, nil
}

func (f *File) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	return syscall.EPERM
}

// Handle is an open capture image.
type Handle struct {
	fs   *FS
	path string
}

func (h *Handle) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	data, err := h.fs.fsys.Read(ctx, h.path, req.Offset, req.Size)
	if err != nil {
		return h.fs.fuseError(err)
	}
	resp.Data = data
	return nil
}

func (h *Handle) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	_, err := h.fs.fsys.Write(ctx, h.path, req.Data, req.Offset)
	return h.fs.fuseError(err)
}
