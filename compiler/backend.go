package compiler

import (
	dcerrors "github.com/sbl8/dualc/errors"
	"github.com/sbl8/dualc/model"
)

// SelectBackend picks the backend for a class under a preference. An
// explicit preference is honored, except that the fast backend cannot run
// C3 programs. Auto sends C0 and C1 to the fast backend and C2 and C3 to
// the general one.
func SelectBackend(class model.Complexity, prefer string) (model.Backend, error) {
	switch prefer {
	case model.PreferFast:
		if class == model.C3 {
			return 0, dcerrors.CapabilityViolation(model.PreferFast, class.String())
		}
		return model.BackendFast, nil
	case model.PreferGeneral:
		return model.BackendGeneral, nil
	case model.PreferAuto, "":
		if class <= model.C1 {
			return model.BackendFast, nil
		}
		return model.BackendGeneral, nil
	}
	return 0, dcerrors.Malformed("unknown backend preference %q", prefer)
}

// checkHint enforces an optional complexity hint: it must name exactly the
// computed class.
func checkHint(hint string, class model.Complexity) error {
	if hint == "" {
		return nil
	}
	want, err := model.ParseComplexity(hint)
	if err != nil {
		return dcerrors.Malformed("%v", err)
	}
	if want != class {
		return dcerrors.HintMismatch(hint, class.String())
	}
	return nil
}
