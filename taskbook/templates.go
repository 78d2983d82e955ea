package taskbook

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultTemplates holds the page templates written by `taskbook
// init`. They are plain files afterwards; edit them freely (with
// templates.autoReload on, edits show up on the next refresh).
var DefaultTemplates = map[string]string{
	"layout.tpl": `<!DOCTYPE html>
<html>
<head>
<title>{title}</title>
<link rel="stylesheet" href="/static/style.css"/>
</head>
<body>
<h1>{title}</h1>
{.content}
<hr/>
<p><a href="/">Task Book</a> | <a href="/static/">Files</a></p>
</body>
</html>
`,

	"index.tpl": `<extend>layout
<?title?>Task Book ({open} open)
<?content?>
{.tasklist}
<h2>Add a task</h2>
<form method="post" action="/add">
<p><input name="title" placeholder="What needs doing?" autofocus/></p>
<p><textarea name="notes" placeholder="Notes (optional)"></textarea></p>
<p><input type="submit" value="Add"/></p>
</form>
</extend>
`,

	"tasklist.tpl": `<loop tasks>
<table>
<tr><th></th><th>Task</th><th>Added</th><th></th></tr>
<?begin?>
<tr class="{rowClass}">
<td><form method="post" action="/task/{id}/toggle"><input type="submit" value="{mark}"/></form></td>
<td><a href="/task/{id}">{title}</a></td>
<td>{created}</td>
<td><form method="post" action="/task/{id}/delete"><input type="submit" value="remove"/></form></td>
</tr>
<?end?>
</table>
<?else?>
<p>Nothing to do. Enjoy it.</p>
</loop>
`,

	"task.tpl": `<extend>layout
<?title?>{title}
<?content?>
<p class="{rowClass}">Status: {status}, added {created}.</p>
<pre>{notes}</pre>
<form method="post" action="/task/{id}/toggle"><input type="submit" value="Mark {other}"/></form>
<p><a href="/">Back to the book</a></p>
</extend>
`,
}

// DefaultStatic holds the static assets written by `taskbook init`.
var DefaultStatic = map[string]string{
	"style.css": `body { font-family: sans-serif; margin: 2em auto; max-width: 40em; }
table { border-collapse: collapse; width: 100%; }
td, th { padding: 0.3em 0.6em; text-align: left; }
tr.done td a { text-decoration: line-through; color: #888; }
form { display: inline; }
`,
}

// WriteDefaults lays down the template and static files under dir,
// refusing to overwrite anything already there.
func WriteDefaults(dir string) error {
	write := func(sub string, files map[string]string) error {
		folder := filepath.Join(dir, sub)
		if err := os.MkdirAll(folder, 0755); err != nil {
			return err
		}
		for name, content := range files {
			path := filepath.Join(folder, name)
			if _, err := os.Stat(path); err == nil {
				continue
			}
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
		}
		return nil
	}
	if err := write("templates", DefaultTemplates); err != nil {
		return err
	}
	return write("static", DefaultStatic)
}
