package api

import "net/http"

// UploadResource is the catalogue entry Client.Upload posts files to.
const UploadResource = "upload"

// Catalogue is the Life Engine endpoint table.
var Catalogue = []EndpointSpec{
	{Name: "me", Path: "me"},
	{Name: "calendar", Path: "tasks/{DLId}", Overrides: map[string]string{
		http.MethodPost: "tasks",
	}},
	{Name: "files", Path: "files/{DLId}"},
	{Name: "folders", Path: "files/folder/{DLId}", Overrides: map[string]string{
		http.MethodPost: "entities/{DLId}/folder",
	}},
	{Name: "taskInbox", Path: "inbox/tasks"},
	{Name: "taskList", Path: "tasks"},
	{Name: "taskComments", Path: "tasks/{DLId}/comment", Overrides: map[string]string{
		http.MethodDelete: "tasks/{DLId}/comment/{commentId}",
	}},
	{Name: "data", Path: "data"},
	{Name: "entity", Path: "entities/{DLId}"},
	{Name: "entities", Path: "entities", Overrides: map[string]string{
		http.MethodDelete: "entities/{DLId}",
	}},
	{Name: "messages", Path: "messages", Overrides: map[string]string{
		http.MethodPut:    "messages/{DLId}",
		http.MethodDelete: "messages/{DLId}",
	}},
	{Name: "messageComments", Path: "messages/{DLId}/comment", Overrides: map[string]string{
		http.MethodDelete: "messages/{DLId}/comment/{commentId}",
	}},
	{Name: "messageRead", Path: "messages/{DLId}/read"},
	{Name: UploadResource, Path: "entities/{DLId}/upload"},
}

var defaultRegistry = MustRegistry(Catalogue)

// DefaultRegistry returns the registry built from Catalogue.
func DefaultRegistry() *Registry {
	return defaultRegistry
}
