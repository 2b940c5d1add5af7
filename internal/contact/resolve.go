package contact

// Resolution is the outcome of merging a pending local patch against the
// latest remote state. Overridden names the fields where the remote value
// won; it is never silently empty when a divergence occurred.
type Resolution struct {
	Patch      Patch
	Overridden []string
}

// Resolve reconciles a local patch against remote drift, field by field.
// cached is the version the patch was authored against; remote is the
// directory's current state. For each field the patch touches:
//
//   - remote unchanged since cached: the local value applies
//   - remote changed, local value equals the remote value: redundant, dropped
//   - remote changed to a different value: remote wins and the field is
//     reported as overridden
//
// Fields the patch does not touch are never in play, so disjoint local and
// remote edits merge cleanly. Fields are flat scalars; there is no
// structural merge within a value.
func Resolve(local Patch, cached, remote Contact) Resolution {
	res := Resolution{Patch: local}
	for _, f := range patchFieldTable {
		if !f.isSet(local) {
			continue
		}
		cachedVal := f.current(cached)
		remoteVal := f.current(remote)
		if fieldValuesEqual(cachedVal, remoteVal) {
			continue
		}
		localVal := f.value(local)
		f.clear(&res.Patch)
		if fieldValuesEqual(localVal, remoteVal) {
			continue
		}
		res.Overridden = append(res.Overridden, f.name)
	}
	return res
}
