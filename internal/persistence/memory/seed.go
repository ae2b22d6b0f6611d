package memory

import (
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"ROLLCALL-backend/internal/persistence"
)

// Seed は memory ドライバ起動時に流し込む参照データ
type Seed struct {
	Accounts []SeedAccount `yaml:"accounts"`
	Students []SeedPerson  `yaml:"students"`
	Teachers []SeedPerson  `yaml:"teachers"`
	Teaching []SeedLink    `yaml:"teaching"`   // id = teacher_id
	Enrolled []SeedLink    `yaml:"enrollment"` // id = student_id
}

type SeedAccount struct {
	UserID       string `yaml:"user_id"`
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"`
	Role         string `yaml:"role"`
	Disabled     bool   `yaml:"disabled"`
}

type SeedPerson struct {
	ID       string `yaml:"id"`
	UserID   string `yaml:"user_id"`
	FullName string `yaml:"full_name"`
}

type SeedLink struct {
	ID      string   `yaml:"id"`
	Courses []string `yaml:"courses"`
}

func ReadSeed(path string) (Seed, error) {
	var seed Seed
	buf, err := os.ReadFile(path)
	if err != nil {
		return seed, fmt.Errorf("seed の読み込み失敗: %w", err)
	}
	if err := yaml.Unmarshal(buf, &seed); err != nil {
		return seed, fmt.Errorf("seed のパース失敗: %w", err)
	}
	return seed, nil
}

// Load は seed を現在の状態に追加する
func (s *Store) Load(seed Seed) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range seed.Accounts {
		hash := a.PasswordHash
		if hash == "" {
			b, err := bcrypt.GenerateFromPassword([]byte(a.Password), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("hash password for %s: %w", a.UserID, err)
			}
			hash = string(b)
		}
		s.st.accounts[a.UserID] = persistence.Account{UserID: a.UserID, PasswordHash: hash, Role: a.Role, IsDisabled: a.Disabled}
	}
	for _, p := range seed.Students {
		s.st.students[p.ID] = persistence.Student{StudentID: p.ID, UserID: p.UserID, FullName: p.FullName}
	}
	for _, p := range seed.Teachers {
		s.st.teachers[p.ID] = persistence.Teacher{TeacherID: p.ID, UserID: p.UserID, FullName: p.FullName}
	}
	for _, l := range seed.Teaching {
		if _, ok := s.st.teachers[l.ID]; !ok {
			return fmt.Errorf("teaching: unknown teacher %s", l.ID)
		}
		for _, c := range l.Courses {
			s.st.teaching[pair{l.ID, c}] = struct{}{}
		}
	}
	for _, l := range seed.Enrolled {
		if _, ok := s.st.students[l.ID]; !ok {
			return fmt.Errorf("enrollment: unknown student %s", l.ID)
		}
		for _, c := range l.Courses {
			s.st.enrolled[pair{l.ID, c}] = struct{}{}
		}
	}
	return nil
}

// AddStudent などはテスト用の小さなヘルパ
func (s *Store) AddStudent(studentID, userID string, courses ...string) {
	_ = s.Load(Seed{
		Students: []SeedPerson{{ID: studentID, UserID: userID}},
		Enrolled: []SeedLink{{ID: studentID, Courses: courses}},
	})
}

func (s *Store) AddTeacher(teacherID, userID string, courses ...string) {
	_ = s.Load(Seed{
		Teachers: []SeedPerson{{ID: teacherID, UserID: userID}},
		Teaching: []SeedLink{{ID: teacherID, Courses: courses}},
	})
}

func (s *Store) AddAccount(userID, passwordHash, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.accounts[userID] = persistence.Account{UserID: userID, PasswordHash: passwordHash, Role: role}
}
