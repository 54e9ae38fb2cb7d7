package clickup

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/vocaris/vocaris/backend"
	internalstrings "github.com/vocaris/vocaris/internal/strings"
)

var (
	// ErrListNotFound indicates no list matched a lookup.
	ErrListNotFound = errors.New("clickup list not found")
	// ErrAmbiguousList indicates a name matched several lists.
	ErrAmbiguousList = errors.New("clickup list name is ambiguous")
	// ErrMemberNotFound indicates no team member matched a lookup.
	ErrMemberNotFound = errors.New("clickup member not found")
)

// Selection is the target chosen for a push.
type Selection struct {
	Token      string
	TeamID     string
	SpaceID    string
	FolderID   string
	ListID     string
	AssigneeID int64
}

// ListRef locates one list in the workspace hierarchy.
type ListRef struct {
	Team   backend.ClickUpTeam
	Space  backend.ClickUpSpace
	Folder backend.ClickUpFolder
	List   backend.ClickUpList
}

// Path renders the list as "team / space / folder / list".
func (r ListRef) Path() string {
	parts := []string{r.Team.Name, r.Space.Name}
	if r.Folder.ID != "" {
		parts = append(parts, r.Folder.Name)
	}
	parts = append(parts, r.List.Name)
	return strings.Join(parts, " / ")
}

// Lists flattens the hierarchy in team, space, folder order. Folderless
// lists come before a space's folders.
func Lists(workspace backend.ClickUpWorkspace) []ListRef {
	var refs []ListRef
	for _, team := range workspace.Teams {
		for _, space := range team.Spaces {
			for _, list := range space.Lists {
				refs = append(refs, ListRef{Team: team, Space: space, List: list})
			}
			for _, folder := range space.Folders {
				for _, list := range folder.Lists {
					refs = append(refs, ListRef{Team: team, Space: space, Folder: folder, List: list})
				}
			}
		}
	}
	return refs
}

// FindList resolves query as a list id, or else as a case-insensitive list
// name that must be unique.
func FindList(workspace backend.ClickUpWorkspace, query string) (ListRef, error) {
	query = internalstrings.TrimSpace(query)
	if query == "" {
		return ListRef{}, ErrMissingList
	}
	refs := Lists(workspace)
	for _, ref := range refs {
		if ref.List.ID == query {
			return ref, nil
		}
	}

	needle := internalstrings.NormalizeLowerTrimSpace(query)
	var matches []ListRef
	for _, ref := range refs {
		if internalstrings.NormalizeLowerTrimSpace(ref.List.Name) == needle {
			matches = append(matches, ref)
		}
	}
	switch len(matches) {
	case 0:
		return ListRef{}, fmt.Errorf("%w: %s", ErrListNotFound, query)
	case 1:
		return matches[0], nil
	default:
		return ListRef{}, fmt.Errorf("%w: %q matches %d lists", ErrAmbiguousList, query, len(matches))
	}
}

// FindMember resolves query as a user id, username, or email within team.
func FindMember(team backend.ClickUpTeam, query string) (backend.ClickUpUser, error) {
	query = internalstrings.TrimSpace(query)
	if query == "" {
		return backend.ClickUpUser{}, ErrMemberNotFound
	}
	if id, err := strconv.ParseInt(query, 10, 64); err == nil {
		for _, member := range team.Members {
			if member.User.ID == id {
				return member.User, nil
			}
		}
	}
	needle := internalstrings.NormalizeLowerTrimSpace(query)
	for _, member := range team.Members {
		if internalstrings.NormalizeLowerTrimSpace(member.User.Username) == needle ||
			internalstrings.NormalizeLowerTrimSpace(member.User.Email) == needle {
			return member.User, nil
		}
	}
	return backend.ClickUpUser{}, fmt.Errorf("%w: %s", ErrMemberNotFound, query)
}

// Select builds a push target from a resolved list.
func Select(token string, ref ListRef, assignee backend.ClickUpUser) Selection {
	return Selection{
		Token:      token,
		TeamID:     ref.Team.ID,
		SpaceID:    ref.Space.ID,
		FolderID:   ref.Folder.ID,
		ListID:     ref.List.ID,
		AssigneeID: assignee.ID,
	}
}

// Request turns the selection into a push request for tickets.
func (s Selection) Request(botID string, dueDays int, tickets []backend.Ticket) PushRequest {
	return PushRequest{
		Token:      s.Token,
		ListID:     s.ListID,
		AssigneeID: s.AssigneeID,
		BotID:      botID,
		DueDays:    dueDays,
		Tickets:    tickets,
	}
}
