package web

import (
	"errors"
	"testing"
)

type fakeTx struct {
	commits   int
	rollbacks int
}

func (t *fakeTx) Commit() error   { t.commits++; return nil }
func (t *fakeTx) Rollback() error { t.rollbacks++; return nil }

func beginFake(tx *fakeTx) BeginFunc {
	return func() (Tx, error) { return tx, nil }
}

func (t *fakeTx) assert(tt *testing.T, commits, rollbacks int) {
	tt.Helper()
	if t.commits != commits || t.rollbacks != rollbacks {
		tt.Errorf("got %d commits / %d rollbacks, want %d / %d",
			t.commits, t.rollbacks, commits, rollbacks)
	}
}

func TestCommitOnSuccess(t *testing.T) {
	tx := &fakeTx{}
	guarded := Transactional(beginFake(tx), HandlerFunc(func(req *Request, _ Params) (*Response, error) {
		if TxFrom(req.Context()) != Tx(tx) {
			t.Error("handler could not see the open transaction")
		}
		return Text("saved"), nil
	}))

	resp, err := guarded.Handle(NewRequest("POST", "/save"), Params{})
	if err != nil || resp.Code != 200 {
		t.Fatalf("Handle = %v, %v", resp, err)
	}
	tx.assert(t, 1, 0)
}

func TestRollbackOnHandlerError(t *testing.T) {
	tx := &fakeTx{}
	guarded := Transactional(beginFake(tx), HandlerFunc(func(*Request, Params) (*Response, error) {
		return nil, errors.New("boom")
	}))

	_, err := guarded.Handle(NewRequest("GET", "/"), Params{})
	if err == nil {
		t.Fatal("handler error was swallowed")
	}
	tx.assert(t, 0, 1)
}

func TestRollbackOnPanicWith500(t *testing.T) {
	tx := &fakeTx{}
	guarded := Transactional(beginFake(tx), HandlerFunc(func(*Request, Params) (*Response, error) {
		panic("kaboom")
	}))

	resp, err := guarded.Handle(NewRequest("GET", "/"), Params{})
	if err != nil {
		t.Fatalf("panic should become a response, got error %v", err)
	}
	if resp.Code != 500 {
		t.Errorf("Code = %d, want 500", resp.Code)
	}
	tx.assert(t, 0, 1)
}

func TestRollbackOnErrorStatusByDefault(t *testing.T) {
	tx := &fakeTx{}
	guarded := Transactional(beginFake(tx), HandlerFunc(func(*Request, Params) (*Response, error) {
		return NotFound(), nil
	}))

	resp, err := guarded.Handle(NewRequest("GET", "/missing"), Params{})
	if err != nil || resp.Code != 404 {
		t.Fatalf("Handle = %v, %v", resp, err)
	}
	tx.assert(t, 0, 1)
}

func TestCommitErrorResponsesOption(t *testing.T) {
	tx := &fakeTx{}
	guarded := Transactional(beginFake(tx), HandlerFunc(func(*Request, Params) (*Response, error) {
		return Generic(403, "", nil), nil
	}), CommitErrorResponses())

	if _, err := guarded.Handle(NewRequest("GET", "/"), Params{}); err != nil {
		t.Fatal(err)
	}
	tx.assert(t, 1, 0)
}

func TestRedirectCommits(t *testing.T) {
	tx := &fakeTx{}
	guarded := Transactional(beginFake(tx), HandlerFunc(func(*Request, Params) (*Response, error) {
		return Redirect("/done"), nil
	}))

	if _, err := guarded.Handle(NewRequest("POST", "/act"), Params{}); err != nil {
		t.Fatal(err)
	}
	tx.assert(t, 1, 0)
}

func TestBeginFailureIsError(t *testing.T) {
	called := false
	guarded := Transactional(func() (Tx, error) {
		return nil, errors.New("database is locked")
	}, HandlerFunc(func(*Request, Params) (*Response, error) {
		called = true
		return Text("unreachable"), nil
	}))

	_, err := guarded.Handle(NewRequest("GET", "/"), Params{})
	if err == nil {
		t.Fatal("begin failure was swallowed")
	}
	if called {
		t.Error("inner handler ran without a transaction")
	}
}

type failingCommitTx struct{ fakeTx }

func (t *failingCommitTx) Commit() error {
	t.commits++
	return errors.New("disk full")
}

func TestCommitFailureVoidsResponse(t *testing.T) {
	tx := &failingCommitTx{}
	guarded := Transactional(func() (Tx, error) { return tx, nil },
		HandlerFunc(func(*Request, Params) (*Response, error) {
			return Text("all saved"), nil
		}))

	resp, err := guarded.Handle(NewRequest("POST", "/save"), Params{})
	if err == nil {
		t.Fatal("commit failure was swallowed")
	}
	if resp != nil {
		t.Error("a success response went out despite the failed commit")
	}
}

func TestExactlyOneTerminalAction(t *testing.T) {
	outcomes := []struct {
		name    string
		handler HandlerFunc
	}{
		{"success", func(*Request, Params) (*Response, error) { return Text("ok"), nil }},
		{"error", func(*Request, Params) (*Response, error) { return nil, errors.New("x") }},
		{"panic", func(*Request, Params) (*Response, error) { panic("x") }},
		{"error status", func(*Request, Params) (*Response, error) { return NotFound(), nil }},
		{"nil response", func(*Request, Params) (*Response, error) { return nil, nil }},
	}
	for _, tt := range outcomes {
		t.Run(tt.name, func(t *testing.T) {
			tx := &fakeTx{}
			guarded := Transactional(beginFake(tx), tt.handler)
			_, _ = guarded.Handle(NewRequest("GET", "/"), Params{})
			if total := tx.commits + tx.rollbacks; total != 1 {
				t.Errorf("%d terminal actions, want exactly 1 (commits=%d rollbacks=%d)",
					total, tx.commits, tx.rollbacks)
			}
		})
	}
}
