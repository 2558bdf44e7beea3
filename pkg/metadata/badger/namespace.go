package badger

import (
	"context"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/stripefs/pkg/metadata"
)

// ============================================================================
// Lookups
// ============================================================================

func (s *BadgerMetadataStore) Root(ctx context.Context) (*metadata.Inode, error) {
	return s.GetInode(ctx, metadata.RootIno)
}

func (s *BadgerMetadataStore) GetInode(ctx context.Context, ino uint64) (*metadata.Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var inode *metadata.Inode
	err := s.db.View(func(txn *badgerdb.Txn) error {
		var err error
		inode, err = getInode(txn, ino)
		return err
	})
	if err != nil {
		return nil, mapError("get inode", err)
	}
	return inode, nil
}

func (s *BadgerMetadataStore) Lookup(ctx context.Context, parent uint64, name string) (*metadata.Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var inode *metadata.Inode
	err := s.db.View(func(txn *badgerdb.Txn) error {
		if _, err := getDir(txn, parent); err != nil {
			return err
		}
		rec, ok, err := getDirent(txn, parent, name)
		if err != nil {
			return err
		}
		if !ok {
			return metadata.NewNotFoundError(name)
		}
		inode, err = getInode(txn, rec.Ino)
		if metadata.IsCode(err, metadata.ErrNotFound) {
			return metadata.NewError(metadata.ErrStaleHandle, "dangling entry", name)
		}
		return err
	})
	if err != nil {
		return nil, mapError("lookup", err)
	}
	return inode, nil
}

func (s *BadgerMetadataStore) ReadDir(ctx context.Context, ino uint64) ([]metadata.DirEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entries []metadata.DirEntry
	err := s.db.View(func(txn *badgerdb.Txn) error {
		if _, err := getDir(txn, ino); err != nil {
			return err
		}

		prefix := keyDirentPrefix(ino)
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// Keys sort bytewise, which is the order of Go string comparison.
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			data, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			rec, err := decodeDirent(data)
			if err != nil {
				return err
			}
			entries = append(entries, metadata.DirEntry{
				Name: nameFromDirentKey(item.Key()),
				Ino:  rec.Ino,
				Type: metadata.FileType(rec.Type),
			})
		}
		return nil
	})
	if err != nil {
		return nil, mapError("read dir", err)
	}
	if entries == nil {
		entries = []metadata.DirEntry{}
	}
	return entries, nil
}

// ============================================================================
// Namespace mutation
// ============================================================================

func (s *BadgerMetadataStore) Create(ctx context.Context, parent uint64, name string, attrs metadata.CreateAttrs) (*metadata.Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := metadata.ValidateCreate(name, attrs); err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var created *metadata.Inode
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		dir, err := getDir(txn, parent)
		if err != nil {
			return err
		}
		if _, exists, err := getDirent(txn, parent, name); err != nil {
			return err
		} else if exists {
			return metadata.NewError(metadata.ErrAlreadyExists, "file exists", name)
		}
		if s.maxFiles > 0 && countInodes(txn) >= s.maxFiles {
			return metadata.NewError(metadata.ErrNoSpace, "inode limit reached", name)
		}

		ino, err := s.nextIno()
		if err != nil {
			return err
		}

		now := time.Now()
		inode := metadata.NewInode(ino, parent, attrs, now)
		if err := putInode(txn, inode); err != nil {
			return err
		}
		if err := putDirent(txn, parent, name, ino, inode.Type); err != nil {
			return err
		}

		dir.Mtime = now
		dir.Ctime = now
		if inode.IsDir() {
			dir.Nlink++
		}
		if err := putInode(txn, dir); err != nil {
			return err
		}

		created = inode
		return nil
	})
	if err != nil {
		return nil, mapError("create", err)
	}
	return created, nil
}

func (s *BadgerMetadataStore) Unlink(ctx context.Context, parent uint64, name string) (*metadata.Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var unlinked *metadata.Inode
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		dir, err := getDir(txn, parent)
		if err != nil {
			return err
		}
		rec, ok, err := getDirent(txn, parent, name)
		if err != nil {
			return err
		}
		if !ok {
			return metadata.NewNotFoundError(name)
		}
		inode, err := getInode(txn, rec.Ino)
		if err != nil {
			return err
		}
		if inode.IsDir() {
			return metadata.NewError(metadata.ErrIsDirectory, "is a directory", name)
		}

		now := time.Now()
		if err := txn.Delete(keyDirent(parent, name)); err != nil {
			return err
		}
		dir.Mtime = now
		dir.Ctime = now
		if err := putInode(txn, dir); err != nil {
			return err
		}

		inode.Nlink--
		inode.Ctime = now
		if inode.Nlink == 0 {
			err = deleteInode(txn, inode.Ino)
		} else {
			err = putInode(txn, inode)
		}
		unlinked = inode
		return err
	})
	if err != nil {
		return nil, mapError("unlink", err)
	}
	return unlinked, nil
}

func (s *BadgerMetadataStore) Rmdir(ctx context.Context, parent uint64, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		dir, err := getDir(txn, parent)
		if err != nil {
			return err
		}
		rec, ok, err := getDirent(txn, parent, name)
		if err != nil {
			return err
		}
		if !ok {
			return metadata.NewNotFoundError(name)
		}
		if metadata.FileType(rec.Type) != metadata.FileTypeDirectory {
			return metadata.NewError(metadata.ErrNotDirectory, "not a directory", name)
		}
		if hasChildren(txn, rec.Ino) {
			return metadata.NewError(metadata.ErrNotEmpty, "directory not empty", name)
		}

		if err := txn.Delete(keyDirent(parent, name)); err != nil {
			return err
		}
		if err := deleteInode(txn, rec.Ino); err != nil {
			return err
		}

		now := time.Now()
		dir.Mtime = now
		dir.Ctime = now
		dir.Nlink--
		return putInode(txn, dir)
	})
	return mapError("rmdir", err)
}

func (s *BadgerMetadataStore) Rename(ctx context.Context, oldParent uint64, oldName string, newParent uint64, newName string) (*metadata.Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := metadata.ValidateName(newName); err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var dropped *metadata.Inode
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		if _, err := getDir(txn, oldParent); err != nil {
			return err
		}
		if _, err := getDir(txn, newParent); err != nil {
			return err
		}
		srcRec, ok, err := getDirent(txn, oldParent, oldName)
		if err != nil {
			return err
		}
		if !ok {
			return metadata.NewNotFoundError(oldName)
		}
		if oldParent == newParent && oldName == newName {
			return nil
		}
		src, err := getInode(txn, srcRec.Ino)
		if err != nil {
			return err
		}

		if src.IsDir() {
			inside, err := metadata.IsAncestor(src.Ino, newParent, func(ino uint64) (*metadata.Inode, error) {
				return getInode(txn, ino)
			})
			if err != nil {
				return err
			}
			if inside {
				return metadata.NewError(metadata.ErrInvalidArgument, "cannot move a directory into itself", newName)
			}
		}

		now := time.Now()
		dstRec, exists, err := getDirent(txn, newParent, newName)
		if err != nil {
			return err
		}
		if exists {
			if dstRec.Ino == src.Ino {
				return nil
			}
			dst, err := getInode(txn, dstRec.Ino)
			if err != nil {
				return err
			}
			if err := metadata.CheckRenameTarget(src, dst, dst.IsDir() && hasChildren(txn, dst.Ino), newName); err != nil {
				return err
			}
			if err := dropTarget(txn, dst, newParent, now, &dropped); err != nil {
				return err
			}
		}

		if err := txn.Delete(keyDirent(oldParent, oldName)); err != nil {
			return err
		}
		if err := putDirent(txn, newParent, newName, src.Ino, src.Type); err != nil {
			return err
		}
		src.Parent = newParent
		src.Ctime = now
		if err := putInode(txn, src); err != nil {
			return err
		}

		// Reload the parents: dropping a directory target may have
		// changed newParent's link count.
		op, err := getInode(txn, oldParent)
		if err != nil {
			return err
		}
		op.Mtime, op.Ctime = now, now
		if oldParent == newParent {
			return putInode(txn, op)
		}

		np, err := getInode(txn, newParent)
		if err != nil {
			return err
		}
		np.Mtime, np.Ctime = now, now
		if src.IsDir() {
			op.Nlink--
			np.Nlink++
		}
		if err := putInode(txn, op); err != nil {
			return err
		}
		return putInode(txn, np)
	})
	if err != nil {
		return nil, mapError("rename", err)
	}
	return dropped, nil
}

// dropTarget removes the entry replaced by a rename.
func dropTarget(txn *badgerdb.Txn, dst *metadata.Inode, parent uint64, now time.Time, dropped **metadata.Inode) error {
	if dst.IsDir() {
		if err := deleteInode(txn, dst.Ino); err != nil {
			return err
		}
		p, err := getInode(txn, parent)
		if err != nil {
			return err
		}
		p.Nlink--
		return putInode(txn, p)
	}

	dst.Nlink--
	dst.Ctime = now
	if dst.Nlink > 0 {
		return putInode(txn, dst)
	}
	*dropped = dst
	return deleteInode(txn, dst.Ino)
}

// ============================================================================
// Attributes
// ============================================================================

func (s *BadgerMetadataStore) SetAttr(ctx context.Context, ino uint64, attrs metadata.SetAttrs) (*metadata.Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var updated *metadata.Inode
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		inode, err := getInode(txn, ino)
		if err != nil {
			return err
		}
		if err := metadata.ApplySetAttrs(inode, attrs, time.Now()); err != nil {
			return err
		}
		updated = inode
		return putInode(txn, inode)
	})
	if err != nil {
		return nil, mapError("setattr", err)
	}
	return updated, nil
}

func (s *BadgerMetadataStore) ExtendSize(ctx context.Context, ino uint64, end uint64, mtime time.Time) (*metadata.Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var updated *metadata.Inode
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		inode, err := getInode(txn, ino)
		if err != nil {
			return err
		}
		if inode.IsDir() {
			return metadata.NewError(metadata.ErrIsDirectory, "cannot extend a directory", "")
		}
		if end > inode.Size {
			inode.Size = end
		}
		inode.Mtime = mtime
		inode.Ctime = mtime
		updated = inode
		return putInode(txn, inode)
	})
	if err != nil {
		return nil, mapError("extend size", err)
	}
	return updated, nil
}
