package handler

import (
	"github.com/go-chi/chi/v5"

	"github.com/sakif/brightminds/internal/auth"
	"github.com/sakif/brightminds/internal/model"
)

// API bundles the handlers mounted under /api/v1.
type API struct {
	Users      *UserHandler
	Classrooms *ClassroomHandler
	Games      *GameHandler
	Attempts   *AttemptHandler
	Access     *Access
}

// Mount registers every API route on r. r must already run
// auth.RequireAuth and auth.LoadCaller.
//
//	POST   /users/register
//	GET    /users/me
//	GET    /users/{userId}                                      self, or teacher reading a student
//	PUT    /users/{userId}                                      self
//	GET    /games                                               any user
//	GET    /games/{libraryGameId}                               any user
//	POST   /games                                               teacher
//	POST   /classrooms                                          teacher
//	GET    /classrooms/my-teaching                              teacher
//	GET    /classrooms/my-enrolled                              student
//	POST   /classrooms/enroll                                   student
//	GET    /classrooms/{classroomId}                            owner or enrolled
//	PUT    /classrooms/{classroomId}                            owner
//	GET    /classrooms/{classroomId}/students                   owner
//	POST   /classrooms/{classroomId}/students                   owner
//	DELETE /classrooms/{classroomId}/students/{studentId}       owner
//	GET    /classrooms/{classroomId}/games                      owner or enrolled
//	POST   /classrooms/{classroomId}/games                      owner
//	GET    /classrooms/{classroomId}/games/{assignedGameId}     owner or enrolled
//	DELETE /classrooms/{classroomId}/games/{assignedGameId}     owner
//	GET    /classrooms/{classroomId}/assigned-games/{assignedGameId}/attempts  owner
//	POST   /game-attempts                                       student
//	GET    /game-attempts/my-attempts                           student
func (a *API) Mount(r chi.Router) {
	teacher := auth.RequireRole(model.RoleTeacher)
	student := auth.RequireRole(model.RoleStudent)
	acc := a.Access

	// The only route open to callers without a profile.
	r.Post("/users/register", a.Users.HandleRegister)

	r.Group(func(r chi.Router) {
		r.Use(acc.RequireRegistered)

		r.Get("/users/me", a.Users.HandleMe)
		r.With(acc.SelfOrTeacherOfStudent).Get("/users/{userId}", a.Users.HandleGet)
		r.Put("/users/{userId}", a.Users.HandleUpdate)

		r.Get("/games", a.Games.HandleList)
		r.Get("/games/{libraryGameId}", a.Games.HandleGet)
		r.With(teacher).Post("/games", a.Games.HandleAdd)

		r.Route("/classrooms", func(r chi.Router) {
			r.With(teacher).Post("/", a.Classrooms.HandleCreate)
			r.With(teacher).Get("/my-teaching", a.Classrooms.HandleListTeaching)
			r.With(student).Get("/my-enrolled", a.Classrooms.HandleListEnrolled)
			r.With(student).Post("/enroll", a.Classrooms.HandleEnroll)

			r.Route("/{classroomId}", func(r chi.Router) {
				r.With(acc.ClassroomMember).Get("/", a.Classrooms.HandleGet)
				r.With(acc.ClassroomMember).Get("/games", a.Classrooms.HandleListAssignedGames)
				r.With(acc.ClassroomMember).Get("/games/{assignedGameId}", a.Classrooms.HandleGetAssignedGame)

				r.Group(func(r chi.Router) {
					r.Use(acc.ClassroomOwner)
					r.Put("/", a.Classrooms.HandleUpdate)
					r.Get("/students", a.Classrooms.HandleListStudents)
					r.Post("/students", a.Classrooms.HandleAddStudent)
					r.Delete("/students/{studentId}", a.Classrooms.HandleRemoveStudent)
					r.Post("/games", a.Classrooms.HandleAssignGame)
					r.Delete("/games/{assignedGameId}", a.Classrooms.HandleUnassignGame)
					r.Get("/assigned-games/{assignedGameId}/attempts", a.Attempts.HandleListForAssignedGame)
				})
			})
		})

		r.Route("/game-attempts", func(r chi.Router) {
			r.Use(student)
			r.Post("/", a.Attempts.HandleSubmit)
			r.With(acc.EnrolledInQueryClassroom).Get("/my-attempts", a.Attempts.HandleListMine)
		})
	})
}
