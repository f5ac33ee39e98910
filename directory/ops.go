package directory

import (
	"github.com/sirupsen/logrus"

	"github.com/akutuzov/sfvfs/consts"
)

// Add maps name to address with the given entry flags. Fails if name is
// malformed, too long, or already present.
func (d *Directory) Add(name string, address int32, flags consts.EntryFlag) error {
	if err := validateName(name, d.maxNameLen); err != nil {
		return err
	}
	if existing, err := d.Find(name); err != nil {
		return err
	} else if existing != nil {
		return dupNameErr(name)
	}

	indexed, err := d.indexed()
	if err != nil {
		return err
	}

	e := Entry{Name: name, Address: address, Flags: flags}
	d.logger.WithFields(logrus.Fields{
		"directory": d.RootAddress(),
		"name":      name,
		"target":    address,
	}).Debug("sfvfs: directory add")

	if !indexed {
		head, err := d.root.ReadInt(firstHeadSlot * consts.PointerSize)
		if err != nil {
			return err
		}
		if err := d.appendEntry(head, e); err != nil {
			return err
		}
		return d.maybePromote()
	}

	slot := d.bucketSlot(name)
	headAddr, err := d.root.ReadInt(int(slot) * consts.PointerSize)
	if err != nil {
		return err
	}
	if headAddr == 0 {
		nb, err := d.store.Allocate()
		if err != nil {
			return err
		}
		if err := nb.Clear(); err != nil {
			return err
		}
		headAddr = nb.Address()
		if err := d.root.WriteInt(int(slot)*consts.PointerSize, headAddr); err != nil {
			return err
		}
	}
	return d.appendEntry(headAddr, e)
}

// Find looks up name, returning nil if it is not present.
func (d *Directory) Find(name string) (*Entry, error) {
	indexed, err := d.indexed()
	if err != nil {
		return nil, err
	}
	if !indexed {
		head, err := d.root.ReadInt(firstHeadSlot * consts.PointerSize)
		if err != nil {
			return nil, err
		}
		return d.findEntry(head, name)
	}
	slot := d.bucketSlot(name)
	headAddr, err := d.root.ReadInt(int(slot) * consts.PointerSize)
	if err != nil {
		return nil, err
	}
	if headAddr == 0 {
		return nil, nil
	}
	return d.findEntry(headAddr, name)
}

// Remove deletes name from the directory. If name is not present,
// nothing changes and no error is returned.
func (d *Directory) Remove(name string) error {
	indexed, err := d.indexed()
	if err != nil {
		return err
	}

	d.logger.WithFields(logrus.Fields{
		"directory": d.RootAddress(),
		"name":      name,
	}).Debug("sfvfs: directory remove")

	if !indexed {
		head, err := d.root.ReadInt(firstHeadSlot * consts.PointerSize)
		if err != nil {
			return err
		}
		_, _, err = d.removeEntry(head, name)
		return err
	}

	slot := d.bucketSlot(name)
	headAddr, err := d.root.ReadInt(int(slot) * consts.PointerSize)
	if err != nil {
		return err
	}
	if headAddr == 0 {
		return nil
	}
	_, chainEmpty, err := d.removeEntry(headAddr, name)
	if err != nil {
		return err
	}
	if chainEmpty {
		if err := d.store.Deallocate(headAddr); err != nil {
			return err
		}
		if err := d.root.WriteInt(int(slot)*consts.PointerSize, 0); err != nil {
			return err
		}
	}
	return nil
}

// Size returns the total number of entries across every chain.
func (d *Directory) Size() (int32, error) {
	indexed, err := d.indexed()
	if err != nil {
		return 0, err
	}

	var total int32
	if !indexed {
		head, err := d.root.ReadInt(firstHeadSlot * consts.PointerSize)
		if err != nil {
			return 0, err
		}
		blk, err := d.store.Get(head)
		if err != nil {
			return 0, err
		}
		return blk.ReadInt(0)
	}

	for slot := int32(0); slot < d.headSlots; slot++ {
		addr, err := d.root.ReadInt(int(firstHeadSlot+slot) * consts.PointerSize)
		if err != nil {
			return 0, err
		}
		if addr == 0 {
			continue
		}
		blk, err := d.store.Get(addr)
		if err != nil {
			return 0, err
		}
		size, err := blk.ReadInt(0)
		if err != nil {
			return 0, err
		}
		total += size
	}
	return total, nil
}

// List drains an Iterator into a slice, in whatever order the
// underlying chains produce entries.
func (d *Directory) List() ([]Entry, error) {
	it, err := d.Iterator()
	if err != nil {
		return nil, err
	}
	var out []Entry
	for {
		e, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, e)
	}
}

// Delete removes the directory, requiring it be empty first.
func (d *Directory) Delete() error {
	size, err := d.Size()
	if err != nil {
		return err
	}
	if size != 0 {
		return notEmptyErr(d.RootAddress())
	}

	indexed, err := d.indexed()
	if err != nil {
		return err
	}
	if !indexed {
		head, err := d.root.ReadInt(firstHeadSlot * consts.PointerSize)
		if err != nil {
			return err
		}
		if head != 0 {
			if err := d.store.Deallocate(head); err != nil {
				return err
			}
		}
	} else {
		for slot := int32(0); slot < d.headSlots; slot++ {
			addr, err := d.root.ReadInt(int(firstHeadSlot+slot) * consts.PointerSize)
			if err != nil {
				return err
			}
			if addr != 0 {
				if err := d.store.Deallocate(addr); err != nil {
					return err
				}
			}
		}
	}
	return d.store.Deallocate(d.RootAddress())
}
