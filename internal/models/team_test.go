package models

import (
	"slices"
	"testing"
)

func TestTeamMembers(t *testing.T) {
	t.Run("AddMember keeps a set in join order", func(t *testing.T) {
		team := &Team{OwnerID: "a", Members: []string{"a"}}

		if !team.AddMember("b") {
			t.Fatal("Expected first AddMember to report a change")
		}
		if team.AddMember("b") {
			t.Error("Expected adding twice to be a no-op")
		}
		if !slices.Equal(team.Members, []string{"a", "b"}) {
			t.Errorf("Expected members [a b], got %v", team.Members)
		}
		if !team.HasMember("b") {
			t.Error("Expected b to be a member")
		}
		if !team.IsOwner("a") || team.IsOwner("b") {
			t.Errorf("Expected only a to own the team, owner is %q", team.OwnerID)
		}
	})

	t.Run("RemoveMember drops only the target", func(t *testing.T) {
		team := &Team{OwnerID: "a", Members: []string{"a", "b", "c"}}

		if !team.RemoveMember("b") {
			t.Fatal("Expected RemoveMember to report a change")
		}
		if team.RemoveMember("b") {
			t.Error("Expected removing twice to be a no-op")
		}
		if !slices.Equal(team.Members, []string{"a", "c"}) {
			t.Errorf("Expected members [a c], got %v", team.Members)
		}
		if team.HasMember("b") {
			t.Error("Expected b to be gone")
		}
	})

	t.Run("Clones do not share member storage", func(t *testing.T) {
		team := &Team{Members: []string{"a", "b", "c"}}
		clone := team.Clone()

		team.RemoveMember("a")
		if !slices.Equal(clone.Members, []string{"a", "b", "c"}) {
			t.Errorf("Clone changed with the original: %v", clone.Members)
		}

		clone.Members[0] = "z"
		if !slices.Equal(team.Members, []string{"b", "c"}) {
			t.Errorf("Original changed with the clone: %v", team.Members)
		}
	})
}

func TestCloneNil(t *testing.T) {
	var team *Team
	if team.Clone() != nil {
		t.Error("Expected nil team clone")
	}
	var user *User
	if user.Clone() != nil {
		t.Error("Expected nil user clone")
	}
	var schedule *Schedule
	if schedule.Clone() != nil {
		t.Error("Expected nil schedule clone")
	}
}
