package session

import "testing"

func TestCreateAndAddMessage(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, 100000)
	if err != nil {
		t.Fatal(err)
	}
	id, err := s.CreateSession("you are an assistant", "build a widget", "")
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("expected non-empty session id")
	}

	ok, err := s.AddMessage(RoleUser, "please proceed", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected message to be added")
	}

	msgs, err := s.GetMessages("")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages (system preamble + initial task + user), got %d", len(msgs))
	}
	if msgs[0].Role != RoleSystem || msgs[1].Role != RoleUser {
		t.Fatalf("expected [system, user, ...] start state, got roles %v, %v", msgs[0].Role, msgs[1].Role)
	}
}

func TestLocalCompactionKeepsSystemAndTail(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, 50) // tiny budget to force compaction
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateSession("t", "", ""); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		s.AddMessage(RoleAssistant, "some moderately long filler content to burn tokens", nil)
	}
	msgs, _ := s.GetMessages("")
	foundSystem := false
	for _, m := range msgs {
		if m.Role == RoleSystem {
			foundSystem = true
		}
	}
	if !foundSystem {
		t.Fatal("expected system seed message to survive compaction")
	}
}

func TestListAndSwitchSessions(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewStore(dir, 100000)
	id1, _ := s.CreateSession("", "first task", "")
	s.AddMessage(RoleUser, "hi", nil)
	id2, _ := s.CreateSession("", "second task", "")
	s.AddMessage(RoleUser, "hello again", nil)

	sessions := s.ListSessions()
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}

	if err := s.SwitchSession(id1); err != nil {
		t.Fatal(err)
	}
	if s.Current().ID != id1 {
		t.Fatalf("expected current session to be %s, got %s", id1, s.Current().ID)
	}
	_ = id2
}
