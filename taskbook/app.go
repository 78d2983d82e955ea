package taskbook

import (
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/kjosib/kale/iolist"
	"github.com/kjosib/kale/template"
	"github.com/kjosib/kale/web"
)

// App holds what the handlers share. One instance serves the whole
// process.
type App struct {
	Templates *template.Folder
}

// NewApp builds the application over a template folder.
func NewApp(templates *template.Folder) *App {
	return &App{Templates: templates}
}

// Router wires the application's routes. Compose the result inside a
// transaction guard; every handler assumes an open transaction on the
// request context.
func (app *App) Router() *web.Router {
	rt := web.NewRouter()
	rt.HandleFunc("GET", "/", app.index)
	rt.HandleFunc("POST", "/add", app.add)
	rt.HandleFunc("GET", "/task/{id}", app.show)
	rt.HandleFunc("POST", "/task/{id}/toggle", app.toggle)
	rt.HandleFunc("POST", "/task/{id}/delete", app.remove)
	return rt
}

func (app *App) render(name string, ctx template.Context) (*web.Response, error) {
	tpl, err := app.Templates.Get(name)
	if err != nil {
		return nil, err
	}
	node, err := tpl.Render(ctx)
	if err != nil {
		return nil, err
	}
	return web.OK(node), nil
}

func taskContext(t Task) template.Context {
	mark, other, status, rowClass := "done?", "done", "open", "open"
	if t.Done {
		mark, other, status, rowClass = "undo", "open", "done", "done"
	}
	return template.Context{
		"id":       t.ID,
		"title":    t.Title,
		"notes":    t.Notes,
		"created":  t.CreatedAt,
		"mark":     mark,
		"other":    other,
		"status":   status,
		"rowClass": rowClass,
	}
}

func (app *App) index(req *web.Request, _ web.Params) (*web.Response, error) {
	tx := web.SQLFrom(req.Context())
	tasks, err := listTasks(tx)
	if err != nil {
		return nil, err
	}
	items := make([]template.Context, len(tasks))
	open := 0
	for i, t := range tasks {
		items[i] = taskContext(t)
		if !t.Done {
			open++
		}
	}
	listTpl, err := app.Templates.Get("tasklist")
	if err != nil {
		return nil, err
	}
	list, err := listTpl.Render(template.Context{"tasks": items})
	if err != nil {
		return nil, err
	}
	return app.render("index", template.Context{
		"open":     open,
		"tasklist": list,
	})
}

func (app *App) add(req *web.Request, _ web.Params) (*web.Response, error) {
	form, err := req.PostForm()
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(form.Get("title"))
	if title == "" {
		return web.Generic(400, "Missing title", iolist.Text(
			"<p>A task needs at least a title. Go back and give it one.</p>")), nil
	}
	tx := web.SQLFrom(req.Context())
	if _, err := insertTask(tx, title, form.Get("notes")); err != nil {
		return nil, err
	}
	return web.Redirect("/"), nil
}

func (app *App) show(req *web.Request, params web.Params) (*web.Response, error) {
	id, resp := taskID(params)
	if resp != nil {
		return resp, nil
	}
	task, err := getTask(web.SQLFrom(req.Context()), id)
	if errors.Is(err, sql.ErrNoRows) {
		return web.NotFound(), nil
	}
	if err != nil {
		return nil, err
	}
	return app.render("task", taskContext(task))
}

func (app *App) toggle(req *web.Request, params web.Params) (*web.Response, error) {
	id, resp := taskID(params)
	if resp != nil {
		return resp, nil
	}
	err := toggleTask(web.SQLFrom(req.Context()), id)
	if errors.Is(err, sql.ErrNoRows) {
		return web.NotFound(), nil
	}
	if err != nil {
		return nil, err
	}
	return web.Redirect("/"), nil
}

func (app *App) remove(req *web.Request, params web.Params) (*web.Response, error) {
	id, resp := taskID(params)
	if resp != nil {
		return resp, nil
	}
	if err := deleteTask(web.SQLFrom(req.Context()), id); err != nil {
		return nil, err
	}
	return web.Redirect("/"), nil
}

func taskID(params web.Params) (int64, *web.Response) {
	id, err := strconv.ParseInt(params["id"], 10, 64)
	if err != nil || id < 1 {
		return 0, web.NotFound()
	}
	return id, nil
}
