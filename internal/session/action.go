package session

import (
	"fmt"

	domainauth "github.com/fixdesk/fixdesk/internal/domain/auth"
)

// action is the closed set of session transitions.
type action interface {
	isAction()
}

// loginAction activates the session. token is zero when the cached record
// carried no usable provider token.
type loginAction struct {
	profile domainauth.Profile
	token   domainauth.Token
}

type logoutAction struct{}

func (loginAction) isAction()  {}
func (logoutAction) isAction() {}

// reduce returns the state that follows cur after a. It has no side effects.
func reduce(_ snapshot, a action) snapshot {
	switch a := a.(type) {
	case loginAction:
		return snapshot{session: domainauth.Active(a.profile), token: a.token}
	case logoutAction:
		return snapshot{}
	default:
		panic(fmt.Sprintf("session: unhandled action %T", a))
	}
}
