// Package livehandle forwards calls to whatever instance of a product is
// live right now, instead of the instance that existed when the handle was
// issued.
//
// Capability interfaces get an explicit forwarding wrapper that resolves
// through a Handle on every method:
//
//	func (r *Repository) Login(user, password string) (*Session, error) {
//	    return livehandle.Call(r.handle, func(repo content.Repository) (*Session, error) {
//	        return repo.Login(user, password)
//	    })
//	}
package livehandle
