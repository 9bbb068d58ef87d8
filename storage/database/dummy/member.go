package dummydb

import (
	"context"
	"sort"

	"github.com/vilmosmisota/sportapp/core/member"
)

type memberRepository struct {
	db *DB
}

var _ member.Repository = (*memberRepository)(nil) // interface compliance check

func NewMemberRepository(db *DB) member.Repository {
	return &memberRepository{db: db}
}

// withTeams returns m with its team ids. db must be locked.
func (repo *memberRepository) withTeams(m member.Member) member.Member {
	teams := repo.db.teamMember[m.ID]
	m.TeamIDs = make([]string, 0, len(teams))
	for id := range teams {
		m.TeamIDs = append(m.TeamIDs, id)
	}
	sort.Strings(m.TeamIDs)
	return m
}

func (repo *memberRepository) pinTaken(tenantID, pin string, excludedIDs ...string) bool {
outer:
	for _, m := range repo.db.member {
		if m.TenantID != tenantID || !m.PIN.Valid || m.PIN.String != pin {
			continue
		}
		for _, id := range excludedIDs {
			if m.ID == id {
				continue outer
			}
		}
		return true
	}
	return false
}

func (repo *memberRepository) CheckPINUniqueness(_ context.Context, tenantID, pin string, excludedIDs ...string) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if repo.pinTaken(tenantID, pin, excludedIDs...) {
		return member.ErrPINExists
	}
	return nil
}

func (repo *memberRepository) CreateMember(_ context.Context, m member.Member) (member.Member, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if m.PIN.Valid && repo.pinTaken(m.TenantID, m.PIN.String) {
		return member.Member{}, member.ErrPINExists
	}
	m.TeamIDs = nil
	repo.db.member[m.ID] = m
	return m, nil
}

func (repo *memberRepository) UpdateMember(_ context.Context, m member.Member) (member.Member, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.member[m.ID]
	if !ok || orig.TenantID != m.TenantID {
		return member.Member{}, member.ErrNotFound
	}
	if m.PIN.Valid && repo.pinTaken(m.TenantID, m.PIN.String, m.ID) {
		return member.Member{}, member.ErrPINExists
	}
	m.TeamIDs = nil
	m.CreatedAt = orig.CreatedAt
	repo.db.member[m.ID] = m
	return repo.withTeams(m), nil
}

func (repo *memberRepository) DeleteMember(_ context.Context, tenantID, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if m, ok := repo.db.member[id]; !ok || m.TenantID != tenantID {
		return member.ErrNotFound
	}
	delete(repo.db.member, id)
	delete(repo.db.teamMember, id)
	// on delete cascade
	for k, r := range repo.db.attendance {
		if r.MemberID == id {
			delete(repo.db.attendance, k)
		}
	}
	for k, ms := range repo.db.membership {
		if ms.MemberID.Valid && ms.MemberID.String == id {
			ms.MemberID.Valid = false
			ms.MemberID.String = ""
			repo.db.membership[k] = ms
		}
	}
	return nil
}

func (repo *memberRepository) GetMember(_ context.Context, tenantID, id string) (member.Member, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if m, ok := repo.db.member[id]; ok && m.TenantID == tenantID {
		return repo.withTeams(m), nil
	}
	return member.Member{}, member.ErrNotFound
}

func (repo *memberRepository) FindMembersByPIN(_ context.Context, tenantID, pin string) ([]member.Member, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var members []member.Member
	for _, m := range repo.db.member {
		if m.TenantID == tenantID && m.PIN.Valid && m.PIN.String == pin {
			members = append(members, repo.withTeams(m))
		}
	}
	return members, nil
}

func (repo *memberRepository) QueryTeamMembers(_ context.Context, tenantID, teamID string) ([]member.Member, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	members := make([]member.Member, 0)
	for _, m := range repo.db.member {
		if m.TenantID == tenantID && repo.db.teamMember[m.ID][teamID] {
			members = append(members, repo.withTeams(m))
		}
	}
	sortMembers(members)
	return members, nil
}

func (repo *memberRepository) SetMemberTeams(_ context.Context, tenantID, memberID string, teamIDs []string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if m, ok := repo.db.member[memberID]; !ok || m.TenantID != tenantID {
		return member.ErrNotFound
	}
	teams := make(map[string]bool, len(teamIDs))
	for _, id := range teamIDs {
		if t, ok := repo.db.team[id]; !ok || t.TenantID != tenantID {
			return member.ErrTeamNotFound
		}
		teams[id] = true
	}
	repo.db.teamMember[memberID] = teams
	return nil
}

func (repo *memberRepository) CreateTeam(_ context.Context, t member.Team) (member.Team, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, other := range repo.db.team {
		if other.TenantID == t.TenantID && other.Name == t.Name {
			return member.Team{}, member.ErrTeamExists
		}
	}
	repo.db.team[t.ID] = t
	return t, nil
}

func (repo *memberRepository) GetTeam(_ context.Context, tenantID, id string) (member.Team, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if t, ok := repo.db.team[id]; ok && t.TenantID == tenantID {
		return t, nil
	}
	return member.Team{}, member.ErrTeamNotFound
}

func (repo *memberRepository) QueryTeams(_ context.Context, tenantID string) ([]member.Team, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	teams := make([]member.Team, 0)
	for _, t := range repo.db.team {
		if t.TenantID == tenantID {
			teams = append(teams, t)
		}
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].Name < teams[j].Name })
	return teams, nil
}

func sortMembers(members []member.Member) {
	sort.Slice(members, func(i, j int) bool {
		if members[i].LastName != members[j].LastName {
			return members[i].LastName < members[j].LastName
		}
		return members[i].FirstName < members[j].FirstName
	})
}
