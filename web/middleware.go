package web

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/kjosib/kale/iolist"
	"github.com/kjosib/kale/logging"
)

// Invalidator is the slice of template.Folder the auto-reload wrapper
// needs.
type Invalidator interface {
	Invalidate()
}

// AutoReload drops a template cache before every request, so edits to
// template files show up on the next refresh. Development convenience
// only; leave it out of a composition meant to run unattended.
func AutoReload(cache Invalidator, inner Handler) Handler {
	return HandlerFunc(func(req *Request, params Params) (*Response, error) {
		cache.Invalidate()
		return inner.Handle(req, params)
	})
}

// Logged composes per-handler logging around inner, for compositions
// that want finer-grained lines than the serve loop's request log.
func Logged(log *logging.Logger, name string, inner Handler) Handler {
	return HandlerFunc(func(req *Request, params Params) (*Response, error) {
		log.Debug("dispatch", logging.Fields{
			"handler":   name,
			"method":    req.Method,
			"uri":       req.RawURI,
			"requestId": RequestIDFrom(req.Context()),
		})
		return inner.Handle(req, params)
	})
}

// HashPIN prepares a PIN for PINGuard. Store the hash, not the PIN.
func HashPIN(pin string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
}

const pinFormPage = `<form method="post">
<p>This page asks for a PIN.</p>
<input type="password" name="pin" autofocus/>
<input type="submit" value="Enter"/>
</form>`

// PINGuard gates inner behind a shared PIN, checked against a bcrypt
// hash. The PIN arrives as the "pin" field of a form post (or a query
// parameter, for links between pages of a guarded app); anything
// without a valid PIN gets a 401 page containing the entry form.
//
// This is a lock on a garden gate, not a vault: it exists so a server
// someone deliberately exposed beyond loopback is not wide open.
func PINGuard(hash []byte, inner Handler) Handler {
	return HandlerFunc(func(req *Request, params Params) (*Response, error) {
		pin, ok := req.Query.Lookup("pin")
		if !ok {
			if post, err := req.PostForm(); err == nil {
				pin, ok = post.Lookup("pin")
			}
		}
		if ok && bcrypt.CompareHashAndPassword(hash, []byte(pin)) == nil {
			return inner.Handle(req, params)
		}
		return Generic(401, "", iolist.Text(pinFormPage)), nil
	})
}
